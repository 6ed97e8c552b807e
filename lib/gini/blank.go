// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

package gini

import (
	"fmt"
	"sync"

	"github.com/downlink-project/downlink/lib/dynabuf"
)

// blankKey identifies one blank-space cache. Images with the same
// record geometry and compression state share cached fill payloads.
type blankKey struct {
	recLen     int
	maxRecords int
	compressed bool
}

// blankCache materializes and retains the all-zero payloads for one
// record geometry. The entry at index i holds the payload for i+1
// records, built on first demand and immutable afterwards, which is
// what makes blank fill bit-reproducible across images.
type blankCache struct {
	key     blankKey
	mutex   sync.Mutex
	entries [][]byte
}

func newBlankCache(key blankKey) *blankCache {
	return &blankCache{key: key, entries: make([][]byte, key.maxRecords)}
}

// payload returns the blank payload for nrecs records, building and
// caching it on first use. Callers must not mutate the result.
func (c *blankCache) payload(nrecs int) ([]byte, error) {
	if nrecs < 1 || nrecs > c.key.maxRecords {
		return nil, statusErrorf(StatusInval,
			"%d blank records requested, cache holds 1 through %d",
			nrecs, c.key.maxRecords)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.entries[nrecs-1] == nil {
		data, err := c.build(nrecs)
		if err != nil {
			return nil, err
		}
		c.entries[nrecs-1] = data
	}
	return c.entries[nrecs-1], nil
}

// build produces the payload for nrecs zero-valued records. For a
// compressed cache the zeros are deflated in a destination of the
// uncompressed size, which an all-zero input never outgrows at
// realistic record lengths.
func (c *blankCache) build(nrecs int) ([]byte, error) {
	raw := make([]byte, nrecs*c.key.recLen)
	if !c.key.compressed {
		return raw, nil
	}
	dst := make([]byte, len(raw))
	n, err := pack(raw, dst)
	if err != nil {
		return nil, fmt.Errorf("blank space of %d records: %w", nrecs, err)
	}
	return dst[:n], nil
}

// Registry is the shared collection of blank-space caches, keyed by
// record geometry and compression. One Registry serves all the
// [Image] instances of an ingest process; it is handed to NewImage
// explicitly rather than living as package state, so sharing and
// lifetime are visible at the type level. Methods are safe for
// concurrent use; entries are immutable once built, so reads after
// lookup need no lock.
type Registry struct {
	mutex  sync.Mutex
	caches map[blankKey]*blankCache
	images int
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{caches: make(map[blankKey]*blankCache)}
}

// cacheFor returns the cache for the given geometry, creating it on
// first use. A cache is never evicted individually; the registry
// tears down as a whole when the last Image using it closes.
func (r *Registry) cacheFor(recLen, maxRecords int, compressed bool) (*blankCache, error) {
	if recLen < 1 || maxRecords < 1 {
		return nil, statusErrorf(StatusInval,
			"degenerate blank-space geometry: %d-byte records, %d max records",
			recLen, maxRecords)
	}
	key := blankKey{recLen: recLen, maxRecords: maxRecords, compressed: compressed}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	cache, ok := r.caches[key]
	if !ok {
		cache = newBlankCache(key)
		r.caches[key] = cache
	}
	return cache, nil
}

// retain counts a new live Image against the registry.
func (r *Registry) retain() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.images++
}

// release drops one Image's hold. When the last holder goes, the
// cached payloads go with it.
func (r *Registry) release() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.images > 0 {
		r.images--
	}
	if r.images == 0 {
		clear(r.caches)
	}
}

// filler appends blank scan lines to an output buffer. configure
// binds it to the registry cache for one image's geometry; fill then
// serves any record count up to that geometry's records-per-block.
// Each Image owns its own filler, so two in-flight images with
// different geometry cannot clobber each other's binding.
type filler struct {
	cache *blankCache
}

func (f *filler) configure(registry *Registry, recLen, maxRecords int, compressed bool) error {
	cache, err := registry.cacheFor(recLen, maxRecords, compressed)
	if err != nil {
		return fmt.Errorf("configure blank-record filler: %w", err)
	}
	f.cache = cache
	return nil
}

// fill appends nrecs blank records to buf.
func (f *filler) fill(buf *dynabuf.Buffer, nrecs int) error {
	if f.cache == nil {
		return statusErrorf(StatusLogic, "filler not configured")
	}
	data, err := f.cache.payload(nrecs)
	if err != nil {
		return err
	}
	if err := buf.Append(data); err != nil {
		return statusErrorf(StatusNoMem,
			"append %d blank records: %w", nrecs, err)
	}
	return nil
}
