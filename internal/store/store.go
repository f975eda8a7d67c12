// Package store is the key-value abstraction behind every local cache of the
// aggregator: pool ids, pools by token, token metadata, pending transfers and
// outstanding claims. Values are opaque blobs owned by the caller.
package store

import (
	"strings"
)

type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Remove(key string) error
	All() (map[string][]byte, error)
}

type prefixed struct {
	inner  Store
	prefix string
}

// Prefixed namespaces keys so several caches can share one backing store.
// All only returns keys under the prefix, with the prefix stripped.
func Prefixed(inner Store, prefix string) Store {
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &prefixed{inner: inner, prefix: prefix}
}

func (p *prefixed) Get(key string) ([]byte, bool, error) {
	return p.inner.Get(p.prefix + key)
}

func (p *prefixed) Set(key string, value []byte) error {
	return p.inner.Set(p.prefix+key, value)
}

func (p *prefixed) Remove(key string) error {
	return p.inner.Remove(p.prefix + key)
}

func (p *prefixed) All() (map[string][]byte, error) {
	all, err := p.inner.All()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte)
	for k, v := range all {
		if rest, ok := strings.CutPrefix(k, p.prefix); ok {
			out[rest] = v
		}
	}
	return out, nil
}

// Batcher is implemented by stores that can write several entries atomically.
type Batcher interface {
	SetBatch(entries map[string][]byte) error
}

// SetMany writes entries through SetBatch when the store supports it.
func SetMany(s Store, entries map[string][]byte) error {
	if b, ok := s.(Batcher); ok {
		return b.SetBatch(entries)
	}
	for k, v := range entries {
		if err := s.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (p *prefixed) SetBatch(entries map[string][]byte) error {
	prefixedEntries := make(map[string][]byte, len(entries))
	for k, v := range entries {
		prefixedEntries[p.prefix+k] = v
	}
	return SetMany(p.inner, prefixedEntries)
}
