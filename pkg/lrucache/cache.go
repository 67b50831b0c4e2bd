// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package lrucache provides a size-accounted in-memory LRU used to
// keep decoded segment metadata sidecars across queries.
package lrucache

import "sync"

// ComputeValue computes a missing value. It returns the value and a
// size estimate in bytes.
type ComputeValue func() (value interface{}, size int)

type cacheEntry struct {
	key   string
	value interface{}
	size  int

	next, prev *cacheEntry
}

type Cache struct {
	mutex                 sync.Mutex
	maxmemory, usedmemory int
	entries               map[string]*cacheEntry
	head, tail            *cacheEntry
}

// New returns a cache that evicts least-recently-used entries once
// the size estimates sum past maxmemory.
func New(maxmemory int) *Cache {
	return &Cache{
		maxmemory: maxmemory,
		entries:   map[string]*cacheEntry{},
	}
}

// Get returns the cached value for key, calling computeValue to fill
// a miss. With a nil computeValue, a miss returns nil.
func (c *Cache) Get(key string, computeValue ComputeValue) interface{} {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if entry, ok := c.entries[key]; ok {
		if entry != c.head {
			c.unlinkEntry(entry)
			c.insertFront(entry)
		}
		return entry.value
	}

	if computeValue == nil {
		return nil
	}

	value, size := computeValue()
	entry := &cacheEntry{key: key, value: value, size: size}
	c.entries[key] = entry
	c.insertFront(entry)
	c.usedmemory += size
	for c.usedmemory > c.maxmemory && c.tail != nil && c.tail != entry {
		c.evictEntry(c.tail)
	}
	return value
}

// Put inserts or replaces the value for key.
func (c *Cache) Put(key string, value interface{}, size int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if entry, ok := c.entries[key]; ok {
		c.usedmemory += size - entry.size
		entry.value, entry.size = value, size
		if entry != c.head {
			c.unlinkEntry(entry)
			c.insertFront(entry)
		}
		return
	}

	entry := &cacheEntry{key: key, value: value, size: size}
	c.entries[key] = entry
	c.insertFront(entry)
	c.usedmemory += size
	for c.usedmemory > c.maxmemory && c.tail != nil && c.tail != entry {
		c.evictEntry(c.tail)
	}
}

// Del drops the entry for key, reporting whether it was present.
func (c *Cache) Del(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if entry, ok := c.entries[key]; ok {
		c.evictEntry(entry)
		return true
	}
	return false
}

// Flush empties the cache. Writers call it on commit so readers never
// observe stale segment state.
func (c *Cache) Flush() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = map[string]*cacheEntry{}
	c.head, c.tail = nil, nil
	c.usedmemory = 0
}

// Keys returns the cached keys, most recently used first.
func (c *Cache) Keys() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	keys := make([]string, 0, len(c.entries))
	for e := c.head; e != nil; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

func (c *Cache) insertFront(e *cacheEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache) unlinkEntry(e *cacheEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *Cache) evictEntry(e *cacheEntry) {
	c.unlinkEntry(e)
	delete(c.entries, e.key)
	c.usedmemory -= e.size
}
