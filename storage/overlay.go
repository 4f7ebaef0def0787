package storage

import (
	"bytes"
	"errors"
	"sort"
)

// Overlay buffers writes on top of a Database until Commit. Reads observe the
// buffered writes first. Discarding an overlay leaves the base untouched, which
// gives every ledger operation all-or-nothing semantics.
type Overlay struct {
	base    Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewOverlay starts a write buffer over base.
func NewOverlay(base Database) *Overlay {
	return &Overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Get returns the buffered value or falls back to the base database.
func (o *Overlay) Get(key []byte) ([]byte, error) {
	k := string(key)
	if _, ok := o.deletes[k]; ok {
		return nil, ErrNotFound
	}
	if v, ok := o.writes[k]; ok {
		return append([]byte(nil), v...), nil
	}
	return o.base.Get(key)
}

// Has reports whether key resolves to a value.
func (o *Overlay) Has(key []byte) (bool, error) {
	_, err := o.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Put buffers a write.
func (o *Overlay) Put(key, value []byte) {
	k := string(key)
	delete(o.deletes, k)
	o.writes[k] = append([]byte(nil), value...)
}

// Delete buffers a removal.
func (o *Overlay) Delete(key []byte) {
	k := string(key)
	delete(o.writes, k)
	o.deletes[k] = struct{}{}
}

// Iterate walks the merged view of base and buffered writes in key order.
func (o *Overlay) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	merged := make(map[string][]byte)
	err := o.base.Iterate(prefix, func(key, value []byte) bool {
		merged[string(key)] = value
		return true
	})
	if err != nil {
		return err
	}
	for k, v := range o.writes {
		if bytes.HasPrefix([]byte(k), prefix) {
			merged[k] = v
		}
	}
	for k := range o.deletes {
		delete(merged, k)
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn([]byte(k), append([]byte(nil), merged[k]...)) {
			break
		}
	}
	return nil
}

// Dirty reports whether anything has been buffered.
func (o *Overlay) Dirty() bool {
	return len(o.writes) > 0 || len(o.deletes) > 0
}

// Commit writes every buffered change to the base in a single batch.
func (o *Overlay) Commit() error {
	if !o.Dirty() {
		return nil
	}
	batch := o.base.NewBatch()
	for k, v := range o.writes {
		batch.Put([]byte(k), v)
	}
	for k := range o.deletes {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	o.Discard()
	return nil
}

// Discard drops every buffered change.
func (o *Overlay) Discard() {
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
}
