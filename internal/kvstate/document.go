// Package kvstate provides a key/value document payload for notification
// channels: each notification is a partial document and the full update is
// every notification merged in order.
package kvstate

import (
	"encoding/json"
	"maps"
	"sync"
)

// Document is a set of string keys and values, safe for concurrent use.
//
// A key with an empty value is a tombstone. Get and Len treat it as absent,
// but it is kept and serialised so that a client applying a merged update
// learns the key was deleted.
type Document struct {
	mu     sync.RWMutex
	values map[string]string
}

// New returns a document holding a copy of values.
func New(values map[string]string) *Document {
	d := &Document{values: make(map[string]string, len(values))}
	maps.Copy(d.values, values)
	return d
}

// Get returns the live value of key.
func (d *Document) Get(key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.values[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Len returns the number of live keys.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, v := range d.values {
		if v != "" {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of every entry, tombstones included.
func (d *Document) Snapshot() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.values)
}

// Merge applies other on top of d; keys present in other win.
func (d *Document) Merge(other *Document) {
	if other == nil || other == d {
		return
	}
	add := other.Snapshot()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.values == nil {
		d.values = make(map[string]string, len(add))
	}
	maps.Copy(d.values, add)
}

// Replace makes d a copy of other.
func (d *Document) Replace(other *Document) {
	var values map[string]string
	if other != nil {
		if other == d {
			return
		}
		values = other.Snapshot()
	}
	if values == nil {
		values = make(map[string]string)
	}

	d.mu.Lock()
	d.values = values
	d.mu.Unlock()
}

// MarshalJSON encodes the document as a JSON object.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Snapshot())
}

// UnmarshalJSON replaces the document with a JSON object of strings. A null
// value decodes as a tombstone.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]*string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v != nil {
			values[k] = *v
		} else {
			values[k] = ""
		}
	}

	d.mu.Lock()
	d.values = values
	d.mu.Unlock()
	return nil
}

// Manager merges documents for a combining notification channel.
type Manager struct{}

func (Manager) NewInstance() *Document {
	return New(nil)
}

func (Manager) Combine(target, add *Document) {
	target.Merge(add)
}

func (Manager) Set(target, value *Document) {
	target.Replace(value)
}
