// Package kv implements C5: a fixed-bucket-count hash table of
// fixed-length keys and values, sharded by a per-bucket mutex so unrelated
// keys never contend. This mirrors cheetah-db's engine.go bucket/shard
// layout, minus its on-disk persistence — durability is out of scope for
// this variant, so there is no WAL or file-backed table here, only the
// in-memory chain.
package kv

import (
	"sync"
)

// node is one entry in a bucket's hash chain.
type node struct {
	key   string
	value []byte
	next  *node
}

// bucket guards its own chain independently of every other bucket.
type bucket struct {
	mu   sync.Mutex
	head *node
}

// Table is a fixed-size, fixed-key/value-length hash table. KeyLen and
// ValLen mirror the wire protocol's fixed field widths; Set does not check
// key or value lengths against them and stores the bytes exactly as given.
type Table struct {
	buckets []bucket
	mask    uint64
	keyLen  int
	valLen  int
}

// New creates a table with the given bucket count (must be a power of two)
// and fixed key/value byte lengths.
func New(bucketCount, keyLen, valLen int) *Table {
	if bucketCount <= 0 || bucketCount&(bucketCount-1) != 0 {
		panic("kv: bucket count must be a power of two")
	}
	return &Table{
		buckets: make([]bucket, bucketCount),
		mask:    uint64(bucketCount - 1),
		keyLen:  keyLen,
		valLen:  valLen,
	}
}

// djb2 is the hash cheetah-db's engine.go uses for bucket placement — a
// cheap, well-distributed hash for short fixed-length keys.
func djb2(key []byte) uint64 {
	var h uint64 = 5381
	for _, c := range key {
		h = h*33 + uint64(c)
	}
	return h
}

func (t *Table) bucketFor(key []byte) *bucket {
	return &t.buckets[djb2(key)&t.mask]
}

// Get returns the value stored for key and whether it was found.
func (t *Table) Get(key []byte) ([]byte, bool) {
	b := t.bucketFor(key)
	k := string(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	for n := b.head; n != nil; n = n.next {
		if n.key == k {
			out := make([]byte, len(n.value))
			copy(out, n.value)
			return out, true
		}
	}
	return nil, false
}

// Set stores value under key, overwriting any existing entry in place. It
// reports whether the key already existed (STORED) or was newly created
// (CREATED), matching the wire protocol's distinct response lines.
//
// The original redundant-execution design protects the live value behind
// an epoch pointer so a validator re-reading it mid-overwrite never sees a
// torn write. That protection is unnecessary here: validators only ever
// read a frame's own logged copy of the arguments and result (see
// logmgr.Frame), never the live table, so a plain in-place overwrite under
// the bucket lock is sufficient — an accepted simplification, see the
// project's design notes.
func (t *Table) Set(key, value []byte) (existed bool) {
	b := t.bucketFor(key)
	k := string(key)
	val := make([]byte, len(value))
	copy(val, value)

	b.mu.Lock()
	defer b.mu.Unlock()
	for n := b.head; n != nil; n = n.next {
		if n.key == k {
			n.value = val
			return true
		}
	}
	b.head = &node{key: k, value: val, next: b.head}
	return false
}

// Delete removes key if present, reporting whether it existed.
func (t *Table) Delete(key []byte) (existed bool) {
	b := t.bucketFor(key)
	k := string(key)

	b.mu.Lock()
	defer b.mu.Unlock()
	var prev *node
	for n := b.head; n != nil; n = n.next {
		if n.key == k {
			if prev == nil {
				b.head = n.next
			} else {
				prev.next = n.next
			}
			return true
		}
		prev = n
	}
	return false
}

// KeyLen and ValLen report the table's fixed field widths.
func (t *Table) KeyLen() int { return t.keyLen }
func (t *Table) ValLen() int { return t.valLen }
