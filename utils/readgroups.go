// cbbq: a high-performance tool for reference-free base quality score
// recalibration of sequencing reads.
// Copyright (c) 2021-2023 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/exascience/cbbq/blob/master/LICENSE.txt>.

package utils

import "sync"

// ReadGroups interns read-group names into small integers. The order
// of first appearance defines the index, so covariate tables can be
// indexed by slice position.
type ReadGroups struct {
	mu      sync.Mutex
	indices map[string]int
	names   []string
}

// NewReadGroups returns an empty interning table.
func NewReadGroups() *ReadGroups {
	return &ReadGroups{indices: make(map[string]int)}
}

/*
Intern returns the index for the given read-group name.

It always returns the same index for names that are equal, and
different indices for names that are not equal. The first name seen
gets index 0, the second index 1, and so on.

It is safe for multiple goroutines to call Intern concurrently.
*/
func (rgs *ReadGroups) Intern(name string) int {
	rgs.mu.Lock()
	defer rgs.mu.Unlock()
	if index, ok := rgs.indices[name]; ok {
		return index
	}
	index := len(rgs.names)
	rgs.indices[name] = index
	rgs.names = append(rgs.names, name)
	return index
}

// Len returns the number of distinct read groups seen so far.
func (rgs *ReadGroups) Len() int {
	rgs.mu.Lock()
	defer rgs.mu.Unlock()
	return len(rgs.names)
}

// Name returns the read-group name for an index.
func (rgs *ReadGroups) Name(index int) string {
	rgs.mu.Lock()
	defer rgs.mu.Unlock()
	return rgs.names[index]
}

// Names returns a copy of all interned names in index order.
func (rgs *ReadGroups) Names() []string {
	rgs.mu.Lock()
	defer rgs.mu.Unlock()
	return append([]string(nil), rgs.names...)
}
