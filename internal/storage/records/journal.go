package records

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultJournalDir     = "./wal/records"
	journalSegmentLimit   = 1000
	journalMaxSegments    = 100
	journalKeyPrefix      = "batch_"
	journalSegmentsPrefix = "records_"
)

// OpKind is the kind of a staged mutation.
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpUpdate OpKind = "update"
	OpRemove OpKind = "remove"
	OpSet    OpKind = "set"
	OpClear  OpKind = "clear"
)

// Mutation is one write against a table or cell.
type Mutation struct {
	Table string          `json:"table"`
	Kind  OpKind          `json:"kind"`
	Key   json.RawMessage `json:"key,omitempty"`
	Value []byte          `json:"value,omitempty"`
}

// Record is one committed batch as written to the journal.
// A record without ops only advances the identifier counter.
type Record struct {
	Seq    uint64     `json:"seq"`
	Batch  string     `json:"batch"`
	NextID uint64     `json:"next_id"`
	Ops    []Mutation `json:"ops,omitempty"`
}

// Journal durably appends committed records and replays them on startup.
type Journal interface {
	Append(rec Record) error
	Replay(fn func(Record) error) error
	Close() error
}

// JournalConfig tunes WAL segment rotation.
type JournalConfig struct {
	Dir              string
	SegmentThreshold int
	MaxSegments      int
	SyncWrites       bool
}

// WALJournal stores records in a segmented write-ahead log.
type WALJournal struct {
	wal *gowal.Wal
	mu  sync.Mutex
}

// NewWALJournal opens (or creates) the journal under cfg.Dir.
func NewWALJournal(cfg JournalConfig) (*WALJournal, error) {
	if cfg.Dir == "" {
		cfg.Dir = defaultJournalDir
	}
	if cfg.SegmentThreshold <= 0 {
		cfg.SegmentThreshold = journalSegmentLimit
	}
	if cfg.MaxSegments <= 0 {
		cfg.MaxSegments = journalMaxSegments
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create records journal dir")
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              cfg.Dir,
		Prefix:           journalSegmentsPrefix,
		SegmentThreshold: cfg.SegmentThreshold,
		MaxSegments:      cfg.MaxSegments,
		IsInSyncDiskMode: cfg.SyncWrites,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init records WAL")
	}

	return &WALJournal{wal: wal}, nil
}

// Append writes rec as the next WAL entry.
func (j *WALJournal) Append(rec Record) error {
	if j == nil || j.wal == nil {
		return errors.New("records journal is not initialized")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal journal record")
	}

	key := fmt.Sprintf("%s%d", journalKeyPrefix, rec.Seq)

	j.mu.Lock()
	defer j.mu.Unlock()

	return j.wal.Write(j.wal.CurrentIndex()+1, key, payload)
}

// Replay feeds every journal record to fn in write order.
func (j *WALJournal) Replay(fn func(Record) error) error {
	if j == nil || j.wal == nil {
		return errors.New("records journal is not initialized")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for msg := range j.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, journalKeyPrefix) {
			continue
		}

		var rec Record
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			return errors.Wrapf(err, "decode journal record %s", msg.Key)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the underlying WAL.
func (j *WALJournal) Close() error {
	if j == nil || j.wal == nil {
		return nil
	}

	return j.wal.Close()
}
