/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package revisionstate

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
)

// SourceID identifies a version-control source independently of the backend
// instance that reported it. Two backends configured for the same source
// must produce the same SourceID.
type SourceID string

// Snapshot is a backend-defined marker of a source's state at a point in
// time. Only the backend that produced it interprets the contents; a nil
// Snapshot means "no snapshot".
type Snapshot []byte

// Equal reports whether two snapshots hold the same bytes.
func (s Snapshot) Equal(other Snapshot) bool {
	return bytes.Equal(s, other)
}

// String renders the snapshot for logs.
func (s Snapshot) String() string {
	return string(s)
}

// Store maps source identities to the snapshot recorded for them on a single
// build record. It holds at most one snapshot per SourceID.
type Store struct {
	states map[SourceID]Snapshot
}

// New returns an empty Store.
func New() *Store {
	return &Store{states: make(map[SourceID]Snapshot)}
}

// Get returns the snapshot stored for id. The boolean is false when this
// build never recorded one, which is the normal outcome for a job's first
// build or a newly added source.
func (s *Store) Get(id SourceID) (Snapshot, bool) {
	if s == nil {
		return nil, false
	}
	snap, ok := s.states[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(snap), true
}

// Put records snap for id, replacing any earlier snapshot for the same id.
// The store keeps its own copy so later changes to snap are not observed.
// Put on a nil Store records nothing.
func (s *Store) Put(id SourceID, snap Snapshot) {
	if s == nil {
		return
	}
	if s.states == nil {
		s.states = make(map[SourceID]Snapshot)
	}
	s.states[id] = slices.Clone(snap)
}

// Clone returns a copy of s that shares no snapshots with it. The clone of
// a nil Store is nil.
func (s *Store) Clone() *Store {
	if s == nil {
		return nil
	}
	c := &Store{states: make(map[SourceID]Snapshot, len(s.states))}
	for id, snap := range s.states {
		c.states[id] = slices.Clone(snap)
	}
	return c
}

// Len returns the number of sources with a recorded snapshot.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.states)
}

// IDs returns the recorded source identities in sorted order.
func (s *Store) IDs() []SourceID {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.states))
}

type storeJSON struct {
	States map[SourceID]Snapshot `json:"states"`
}

// MarshalJSON encodes the store as it is persisted with its build record.
// Snapshots are base64 encoded.
func (s *Store) MarshalJSON() ([]byte, error) {
	states := s.states
	if states == nil {
		states = map[SourceID]Snapshot{}
	}
	return json.Marshal(storeJSON{States: states})
}

// UnmarshalJSON restores a store written by MarshalJSON.
func (s *Store) UnmarshalJSON(data []byte) error {
	var raw storeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.states = make(map[SourceID]Snapshot, len(raw.States))
	for id, snap := range raw.States {
		s.states[id] = snap
	}
	return nil
}
