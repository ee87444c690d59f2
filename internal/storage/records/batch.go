package records

// Batch collects mutations that are validated and applied together by Store.Commit.
// Staging never touches the store; a batch that is never committed has no effect.
type Batch struct {
	ops []Mutation
	err error
}

// NewBatch returns an empty staging buffer.
func NewBatch() *Batch {
	return &Batch{}
}

// Len returns the number of staged mutations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Err returns the first staging error, if any.
func (b *Batch) Err() error {
	return b.err
}

func (b *Batch) add(m Mutation, err error) {
	if b.err != nil {
		return
	}
	if err != nil {
		b.err = err
		return
	}

	b.ops = append(b.ops, m)
}
