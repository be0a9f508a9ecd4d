// Package keydir implements the engine's in-memory index: a map from
// key bytes to the file location of that key's latest live value.
// Iteration order is insertion order, preserved across overwrites, so
// the type is backed by a map paired with a doubly linked list rather
// than a bare map — the structure spec.md's design notes recommend,
// and the one place this engine deliberately falls back to the
// standard library (see DESIGN.md: no ordered-map library appears
// anywhere in the reference corpus).
package keydir

import "container/list"

// Entry describes where a live key's value bytes live on disk.
type Entry struct {
	Offset   int64
	Size     uint32
	Checksum uint32
}

type node struct {
	key   string
	entry Entry
}

// KeyDir is the engine's live-key index. It is not safe for
// concurrent use; the engine that owns it is single-threaded by
// design (spec.md §5).
type KeyDir struct {
	index map[string]*list.Element
	order *list.List
}

// New returns an empty KeyDir.
func New() *KeyDir {
	return &KeyDir{
		index: make(map[string]*list.Element),
		order: list.New(),
	}
}

// Get returns the entry for key, if any.
func (k *KeyDir) Get(key string) (Entry, bool) {
	el, ok := k.index[key]
	if !ok {
		return Entry{}, false
	}
	return el.Value.(*node).entry, true
}

// Put records or updates the entry for key. A new key is appended to
// the back of the insertion order; an existing key's entry is updated
// in place, so its position in the order is unchanged.
func (k *KeyDir) Put(key string, entry Entry) {
	if el, ok := k.index[key]; ok {
		el.Value.(*node).entry = entry
		return
	}
	el := k.order.PushBack(&node{key: key, entry: entry})
	k.index[key] = el
}

// Remove deletes key from the index, reporting whether it was
// present.
func (k *KeyDir) Remove(key string) bool {
	el, ok := k.index[key]
	if !ok {
		return false
	}
	k.order.Remove(el)
	delete(k.index, key)
	return true
}

// Contains reports whether key is currently live.
func (k *KeyDir) Contains(key string) bool {
	_, ok := k.index[key]
	return ok
}

// Len returns the number of live keys.
func (k *KeyDir) Len() int {
	return len(k.index)
}

// Clear removes every key.
func (k *KeyDir) Clear() {
	k.index = make(map[string]*list.Element)
	k.order.Init()
}

// Last returns the most recently inserted live key, for PopItem's LIFO
// order.
func (k *KeyDir) Last() (string, Entry, bool) {
	back := k.order.Back()
	if back == nil {
		return "", Entry{}, false
	}
	n := back.Value.(*node)
	return n.key, n.entry, true
}

// Each calls fn for every key in forward (insertion) order, stopping
// early if fn returns false.
func (k *KeyDir) Each(fn func(key string, entry Entry) bool) {
	for el := k.order.Front(); el != nil; el = el.Next() {
		n := el.Value.(*node)
		if !fn(n.key, n.entry) {
			return
		}
	}
}

// EachReverse calls fn for every key in reverse (most-recently
// inserted first) order, stopping early if fn returns false.
func (k *KeyDir) EachReverse(fn func(key string, entry Entry) bool) {
	for el := k.order.Back(); el != nil; el = el.Prev() {
		n := el.Value.(*node)
		if !fn(n.key, n.entry) {
			return
		}
	}
}

// Keys returns every live key in forward insertion order. Used by
// callers (such as the engine's key and item iterators) that need a
// stable snapshot rather than a live iterator.
func (k *KeyDir) Keys() []string {
	keys := make([]string, 0, k.Len())
	k.Each(func(key string, _ Entry) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}
