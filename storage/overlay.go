package storage

import (
	"errors"
	"sync"
)

// KV is a single pending write.
type KV struct {
	Key   []byte
	Value []byte
}

type batchWriter interface {
	WriteBatch(writes []KV) error
}

var errOverlayClosed = errors.New("storage: overlay already committed or discarded")

// Overlay buffers writes on top of a base Database so a call can be applied as
// one unit or dropped entirely. Reads see buffered writes first.
type Overlay struct {
	mu      sync.Mutex
	base    Database
	order   []string
	pending map[string][]byte
	closed  bool
}

// NewOverlay wraps base with an empty write buffer.
func NewOverlay(base Database) *Overlay {
	return &Overlay{base: base, pending: make(map[string][]byte)}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errOverlayClosed
	}
	k := string(key)
	if _, ok := o.pending[k]; !ok {
		o.order = append(o.order, k)
	}
	o.pending[k] = append([]byte(nil), value...)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.Lock()
	value, ok := o.pending[string(key)]
	o.mu.Unlock()
	if ok {
		return append([]byte(nil), value...), nil
	}
	return o.base.Get(key)
}

// Pending reports the number of distinct keys waiting to be committed.
func (o *Overlay) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.order)
}

// Commit flushes buffered writes to the base store in first-write order. A
// LevelDB base receives them as a single batch.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errOverlayClosed
	}
	o.closed = true
	writes := make([]KV, 0, len(o.order))
	for _, k := range o.order {
		writes = append(writes, KV{Key: []byte(k), Value: o.pending[k]})
	}
	o.pending = nil
	o.order = nil
	if len(writes) == 0 {
		return nil
	}
	if bw, ok := o.base.(batchWriter); ok {
		return bw.WriteBatch(writes)
	}
	for _, kv := range writes {
		if err := o.base.Put(kv.Key, kv.Value); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops every buffered write.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.pending = nil
	o.order = nil
}

// Close is a no-op; the base store is owned by the caller.
func (o *Overlay) Close() {}
