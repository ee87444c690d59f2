package records

import (
	"cmp"
	"encoding/json"
	"slices"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tbills/internal/domain"
)

// tableOps is the untyped view of a table the store needs to validate, apply and replay mutations.
// Callers hold the store lock.
type tableOps interface {
	accepts(kind OpKind) bool
	contains(key json.RawMessage) (bool, error)
	apply(m Mutation) error
	missing(key json.RawMessage) error
	conflict(key json.RawMessage) error
	count() int
}

// Table is a key-ordered mapping owning the encoded bytes of one entity type.
type Table[K cmp.Ordered, V any] struct {
	store    *Store
	name     string
	keyOf    func(V) K
	notFound *domain.Error
	exists   *domain.Error
	rows     map[K][]byte
	keys     []K
}

func newTable[K cmp.Ordered, V any](s *Store, name string, keyOf func(V) K, notFound, exists *domain.Error) *Table[K, V] {
	t := &Table[K, V]{
		store:    s,
		name:     name,
		keyOf:    keyOf,
		notFound: notFound,
		exists:   exists,
		rows:     make(map[K][]byte),
	}
	s.tables[name] = t

	return t
}

// Name returns the table name used in the journal and statistics.
func (t *Table[K, V]) Name() string {
	return t.name
}

// Get returns a decoded copy of the entity stored under key.
func (t *Table[K, V]) Get(key K) (V, error) {
	t.store.mu.RLock()
	data, ok := t.rows[key]
	t.store.mu.RUnlock()

	if !ok {
		var zero V
		return zero, errors.Wrapf(t.notFound, "%s %v", t.name, key)
	}

	return Decode[V](data)
}

// Has reports whether key is present.
func (t *Table[K, V]) Has(key K) bool {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	_, ok := t.rows[key]
	return ok
}

// List returns all entities in ascending key order.
func (t *Table[K, V]) List() ([]V, error) {
	return t.Filter(nil)
}

// Filter returns entities matching pred in ascending key order; a nil pred matches everything.
func (t *Table[K, V]) Filter(pred func(V) bool) ([]V, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	return t.scan(pred)
}

// Count returns the number of stored entities.
func (t *Table[K, V]) Count() int {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	return len(t.keys)
}

// Insert adds v; the key must not exist.
func (t *Table[K, V]) Insert(v V) error {
	b := NewBatch()
	t.StageInsert(b, v)

	return t.store.Commit(b)
}

// Update replaces the stored entity with v; the key must exist.
func (t *Table[K, V]) Update(v V) error {
	b := NewBatch()
	t.StageUpdate(b, v)

	return t.store.Commit(b)
}

// Remove deletes and returns the entity stored under key.
func (t *Table[K, V]) Remove(key K) (V, error) {
	v, err := t.Get(key)
	if err != nil {
		return v, err
	}

	b := NewBatch()
	t.StageRemove(b, key)
	if err := t.store.Commit(b); err != nil {
		var zero V
		return zero, err
	}

	return v, nil
}

// StageInsert adds an insert of v to b.
func (t *Table[K, V]) StageInsert(b *Batch, v V) {
	t.stage(b, OpInsert, t.keyOf(v), &v)
}

// StageUpdate adds an update of v to b.
func (t *Table[K, V]) StageUpdate(b *Batch, v V) {
	t.stage(b, OpUpdate, t.keyOf(v), &v)
}

// StageRemove adds a removal of key to b.
func (t *Table[K, V]) StageRemove(b *Batch, key K) {
	t.stage(b, OpRemove, key, nil)
}

// StageClear adds a removal of every entity to b.
func (t *Table[K, V]) StageClear(b *Batch) {
	b.add(Mutation{Table: t.name, Kind: OpClear}, nil)
}

func (t *Table[K, V]) stage(b *Batch, kind OpKind, key K, v *V) {
	rawKey, err := json.Marshal(key)
	if err != nil {
		b.add(Mutation{}, errors.Wrapf(err, "encode %s key", t.name))
		return
	}

	m := Mutation{Table: t.name, Kind: kind, Key: rawKey}
	if v != nil {
		m.Value, err = Encode(*v)
	}

	b.add(m, err)
}

func (t *Table[K, V]) scan(pred func(V) bool) ([]V, error) {
	out := make([]V, 0, len(t.keys))
	for _, k := range t.keys {
		v, err := Decode[V](t.rows[k])
		if err != nil {
			return nil, errors.Wrapf(err, "%s %v", t.name, k)
		}
		if pred == nil || pred(v) {
			out = append(out, v)
		}
	}

	return out, nil
}

func (t *Table[K, V]) decodeKey(raw json.RawMessage) (K, error) {
	var k K
	if err := json.Unmarshal(raw, &k); err != nil {
		return k, errors.Wrapf(err, "decode %s key", t.name)
	}

	return k, nil
}

func (t *Table[K, V]) contains(raw json.RawMessage) (bool, error) {
	k, err := t.decodeKey(raw)
	if err != nil {
		return false, err
	}

	_, ok := t.rows[k]
	return ok, nil
}

func (t *Table[K, V]) missing(raw json.RawMessage) error {
	return errors.Wrapf(t.notFound, "%s %s", t.name, raw)
}

func (t *Table[K, V]) conflict(raw json.RawMessage) error {
	return errors.Wrapf(t.exists, "%s %s", t.name, raw)
}

func (t *Table[K, V]) accepts(kind OpKind) bool {
	switch kind {
	case OpInsert, OpUpdate, OpRemove, OpClear:
		return true
	default:
		return false
	}
}

func (t *Table[K, V]) count() int {
	return len(t.keys)
}

func (t *Table[K, V]) apply(m Mutation) error {
	if m.Kind == OpClear {
		t.reset()
		return nil
	}

	k, err := t.decodeKey(m.Key)
	if err != nil {
		return err
	}

	switch m.Kind {
	case OpInsert, OpUpdate:
		if len(m.Value) == 0 {
			return domain.ErrStorage.Withf("%s %v: %s without value", t.name, k, m.Kind)
		}
		t.put(k, m.Value)
	case OpRemove:
		t.drop(k)
	default:
		return domain.ErrStorage.Withf("%s: unsupported mutation %q", t.name, m.Kind)
	}

	return nil
}

func (t *Table[K, V]) put(k K, data []byte) {
	if _, ok := t.rows[k]; !ok {
		i, _ := slices.BinarySearch(t.keys, k)
		t.keys = slices.Insert(t.keys, i, k)
	}
	t.rows[k] = data
}

func (t *Table[K, V]) drop(k K) {
	if _, ok := t.rows[k]; !ok {
		return
	}
	delete(t.rows, k)

	if i, found := slices.BinarySearch(t.keys, k); found {
		t.keys = slices.Delete(t.keys, i, i+1)
	}
}

func (t *Table[K, V]) reset() {
	t.rows = make(map[K][]byte)
	t.keys = nil
}

// load replaces the table contents without journaling.
func (t *Table[K, V]) load(vs []V) error {
	t.reset()
	for _, v := range vs {
		data, err := Encode(v)
		if err != nil {
			return err
		}
		t.put(t.keyOf(v), data)
	}

	return nil
}

// Cell is a durable singleton value.
type Cell[V any] struct {
	store *Store
	name  string
	def   V
	value []byte
}

func newCell[V any](s *Store, name string, def V) *Cell[V] {
	c := &Cell[V]{store: s, name: name, def: def}
	s.tables[name] = c

	return c
}

// Get returns the current value, or the default when never set.
func (c *Cell[V]) Get() (V, error) {
	c.store.mu.RLock()
	data := c.value
	c.store.mu.RUnlock()

	if data == nil {
		return c.def, nil
	}

	return Decode[V](data)
}

// Set replaces the value.
func (c *Cell[V]) Set(v V) error {
	b := NewBatch()
	c.StageSet(b, v)

	return c.store.Commit(b)
}

// StageSet adds a replacement of the value to b.
func (c *Cell[V]) StageSet(b *Batch, v V) {
	data, err := Encode(v)
	b.add(Mutation{Table: c.name, Kind: OpSet, Value: data}, err)
}

func (c *Cell[V]) accepts(kind OpKind) bool {
	return kind == OpSet || kind == OpClear
}

func (c *Cell[V]) contains(json.RawMessage) (bool, error) {
	return true, nil
}

func (c *Cell[V]) missing(json.RawMessage) error {
	return domain.ErrStorage.Withf("%s: cell has no keys", c.name)
}

func (c *Cell[V]) conflict(json.RawMessage) error {
	return domain.ErrStorage.Withf("%s: cell has no keys", c.name)
}

func (c *Cell[V]) count() int {
	if c.value == nil {
		return 0
	}

	return 1
}

func (c *Cell[V]) apply(m Mutation) error {
	switch m.Kind {
	case OpSet:
		if len(m.Value) == 0 {
			return domain.ErrStorage.Withf("%s: set without value", c.name)
		}
		c.value = m.Value
	case OpClear:
		c.value = nil
	default:
		return domain.ErrStorage.Withf("%s: unsupported mutation %q", c.name, m.Kind)
	}

	return nil
}

func (c *Cell[V]) load(v V) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}
	c.value = data

	return nil
}

func (c *Cell[V]) current() (V, error) {
	if c.value == nil {
		return c.def, nil
	}

	return Decode[V](c.value)
}
