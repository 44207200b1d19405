// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/golang/snappy"
)

const defaultCacheSize = 4096

// MemStore is an in-memory, content-addressed Store. Values are
// gob-encoded, snappy-compressed, and addressed by the sha256 of the
// compressed bytes; a small LRU caches decoded values so repeated reads of
// hot nodes during a single update don't pay the decode cost twice.
type MemStore struct {
	mu   sync.RWMutex
	data map[Address][]byte
	// links records the outgoing link list passed to StoreNode, purely for
	// introspection/debugging - the engine itself never needs to walk it.
	links map[Address][]Link
	cache *lru.Cache[Address, any]
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	cache, err := lru.New[Address, any](defaultCacheSize)
	if err != nil {
		// Only fails for a non-positive size, which defaultCacheSize never is.
		panic(err)
	}
	return &MemStore{
		data:  make(map[Address][]byte),
		links: make(map[Address][]Link),
		cache: cache,
	}
}

func init() {
	// The concrete types partition/tablet/bloom place behind `any` must be
	// gob-registered by those packages' init()s before any MemStore use;
	// see partition/wire.go.
}

func (s *MemStore) StoreNode(links []Link, data any) (Link, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&data); err != nil {
		return Link{}, fmt.Errorf("store: encode: %w", err)
	}
	compressed := snappy.Encode(nil, buf.Bytes())
	addr := Address(sha256.Sum256(compressed))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[addr]; !exists {
		s.data[addr] = compressed
		s.links[addr] = links
	}
	s.cache.Add(addr, data)
	return Link{Addr: addr}, nil
}

func (s *MemStore) GetData(link Link) (any, error) {
	s.mu.RLock()
	if v, ok := s.cache.Get(link.Addr); ok {
		s.mu.RUnlock()
		return v, nil
	}
	compressed, ok := s.data[link.Addr]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: %x: %w", link.Addr, ErrCorruptNode)
	}

	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, wrapCorrupt(err)
	}
	var data any
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&data); err != nil {
		return nil, wrapCorrupt(err)
	}

	s.mu.Lock()
	s.cache.Add(link.Addr, data)
	s.mu.Unlock()
	return data, nil
}

func (s *MemStore) Link(name string, target Link) Link {
	target.Name = name
	return target
}

func (s *MemStore) IsLink(x any) bool {
	return IsLinkValue(x)
}

// Len returns the number of distinct addresses persisted so far, for tests
// asserting that an operation performed no new store writes (§8's unchanged
// pass-through property).
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
