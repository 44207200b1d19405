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

// Package store defines the content-addressed object store interface
// consumed by the partition engine (§6) and provides one concrete,
// in-memory implementation so the engine is runnable and testable without
// a real backing store.
//
// The store itself is explicitly out of scope for the partition engine
// (§1): this package exists to give §6's consumed interface a body, not
// to specify a production storage engine.
package store

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// Address is the content hash identifying a stored value.
type Address [sha256.Size]byte

// Link is a stable, content-addressed reference returned by the store.
// Name is an optional display tag (e.g. a family name) attached by
// Store.Link; it plays no role in addressing, so links to the same content
// are compared by Addr (== on Link also compares Name).
type Link struct {
	Addr Address
	Name string
}

// IsZero reports whether l is the zero Link (no target).
func (l Link) IsZero() bool { return l.Addr == Address{} && l.Name == "" }

// ErrCorruptNode is returned when a stored value fails to deserialize or
// violates its expected structural schema.
var ErrCorruptNode = errors.New("store: corrupt node")

// ErrUnavailable signals a transient failure of the backing store. The
// engine never retries; it is the caller's responsibility to restart the
// whole update (§7).
var ErrUnavailable = errors.New("store: unavailable")

// Store is the object store interface consumed by the partition engine.
type Store interface {
	// StoreNode serializes data together with its outgoing links and
	// returns a stable content address for it. Storing identical content
	// twice returns the same Link without writing again.
	StoreNode(links []Link, data any) (Link, error)
	// GetData fetches and deserializes the value behind link.
	GetData(link Link) (any, error)
	// Link tags target with a display name, e.g. a family name.
	Link(name string, target Link) Link
	// IsLink reports whether x is a Link value (as opposed to an inline
	// VirtualTablet/Partition value) per the tagged-variant model of §9.
	IsLink(x any) bool
}

// IsLinkValue is the free-function form of Store.IsLink, usable without an
// instance since the discriminator never depends on store state.
func IsLinkValue(x any) bool {
	_, ok := x.(Link)
	return ok
}

func wrapCorrupt(err error) error {
	return fmt.Errorf("%w: %w", ErrCorruptNode, err)
}
