// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package lrucache

import "testing"

func TestBasics(t *testing.T) {
	cache := New(100)

	if v := cache.Get("a", nil); v != nil {
		t.Fatal("empty cache returned a value")
	}

	v := cache.Get("a", func() (interface{}, int) { return "avalue", 10 })
	if v != "avalue" {
		t.Fatal("compute value not returned")
	}
	if v := cache.Get("a", nil); v != "avalue" {
		t.Fatal("cached value lost")
	}

	if !cache.Del("a") {
		t.Fatal("Del did not find the entry")
	}
	if v := cache.Get("a", nil); v != nil {
		t.Fatal("deleted entry still cached")
	}
}

func TestEviction(t *testing.T) {
	cache := New(100)
	for _, k := range []string{"a", "b", "c", "d"} {
		cache.Put(k, k, 30)
	}
	// 4*30 > 100: "a" must have been evicted.
	if v := cache.Get("a", nil); v != nil {
		t.Error("LRU entry not evicted")
	}
	if v := cache.Get("d", nil); v != "d" {
		t.Error("most recent entry evicted")
	}
}

func TestFlush(t *testing.T) {
	cache := New(100)
	cache.Put("a", 1, 10)
	cache.Put("b", 2, 10)
	cache.Flush()
	if len(cache.Keys()) != 0 {
		t.Error("flush left entries behind")
	}
}
