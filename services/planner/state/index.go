// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

// Index assigns dense IDs to distinct states.
//
// Description:
//
//	States are bucketed by Hash and compared exactly within a bucket, so
//	hash collisions never merge distinct states.
//
// Thread Safety: Not safe for concurrent use. Each search owns one.
type Index struct {
	buckets    map[uint64][]int
	states     []State
	collisions int
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{buckets: make(map[uint64][]int)}
}

// Intern returns the ID of s, adding it if unseen.
//
// Outputs:
//   - int: The state ID, dense from 0 in insertion order.
//   - bool: True if s was not in the index before this call.
func (x *Index) Intern(s State) (int, bool) {
	h := s.Hash()
	bucket := x.buckets[h]
	for _, id := range bucket {
		if x.states[id].Equal(s) {
			return id, false
		}
	}
	if len(bucket) > 0 {
		x.collisions++
	}
	id := len(x.states)
	x.states = append(x.states, s)
	x.buckets[h] = append(bucket, id)
	return id, true
}

// Lookup returns the ID of s if present.
func (x *Index) Lookup(s State) (int, bool) {
	for _, id := range x.buckets[s.Hash()] {
		if x.states[id].Equal(s) {
			return id, true
		}
	}
	return 0, false
}

// State returns the state with the given ID.
func (x *Index) State(id int) State {
	return x.states[id]
}

// Len returns the number of distinct states.
func (x *Index) Len() int {
	return len(x.states)
}

// Collisions returns how many distinct states shared a hash with an
// earlier one.
func (x *Index) Collisions() int {
	return x.collisions
}
