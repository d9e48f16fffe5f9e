package lottery

import (
	"context"
	"encoding/json"
)

// txn buffers the writes and events of one operation. Nothing reaches the
// store until commit, so a failed precondition leaves no trace.
type txn struct {
	ctx       context.Context
	store     Store
	namespace string

	pending map[string]Mutation
	order   []string
	events  []Event
}

func newTxn(ctx context.Context, store Store, namespace string) *txn {
	return &txn{
		ctx:       ctx,
		store:     store,
		namespace: namespace,
		pending:   make(map[string]Mutation),
	}
}

func (t *txn) fullKey(key string) string { return t.namespace + key }

// getJSON decodes the value under key into v, reading pending writes first.
func (t *txn) getJSON(key string, v any) (bool, error) {
	full := t.fullKey(key)

	var (
		raw   []byte
		found bool
	)
	if m, ok := t.pending[full]; ok {
		if m.Delete {
			return false, nil
		}
		raw, found = m.Value, true
	} else {
		var err error
		raw, found, err = t.store.Get(t.ctx, full)
		if err != nil {
			return false, ErrStoreFailure.WithCause(err).WithDetails("get " + full)
		}
	}
	if !found {
		return false, nil
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return false, ErrSerialization.WithCause(err).WithDetails("decode " + full)
	}
	return true, nil
}

func (t *txn) putJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return ErrSerialization.WithCause(err).WithDetails("encode " + t.fullKey(key))
	}
	t.record(Mutation{Key: t.fullKey(key), Value: raw})
	return nil
}

func (t *txn) del(key string) {
	t.record(Mutation{Key: t.fullKey(key), Delete: true})
}

func (t *txn) record(m Mutation) {
	if _, ok := t.pending[m.Key]; !ok {
		t.order = append(t.order, m.Key)
	}
	t.pending[m.Key] = m
}

func (t *txn) emit(e Event) { t.events = append(t.events, e) }

// commit applies the buffered writes as one batch in first-write order.
func (t *txn) commit() error {
	if len(t.order) == 0 {
		return nil
	}

	mutations := make([]Mutation, 0, len(t.order))
	for _, k := range t.order {
		mutations = append(mutations, t.pending[k])
	}
	if err := t.store.Apply(t.ctx, mutations); err != nil {
		return ErrStoreFailure.WithCause(err).WithDetails("apply batch")
	}
	return nil
}
