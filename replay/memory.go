// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package replay

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"unsafe"

	"github.com/c2h5oh/datasize"
	"github.com/gammazero/deque"
)

var (
	// ErrInsufficientData is returned by Sample when the memory holds
	// fewer transitions than requested.
	ErrInsufficientData = errors.New("replay: insufficient data")

	// ErrCapacity is returned by New for a non-positive capacity.
	ErrCapacity = errors.New("replay: capacity must be positive")
)

// maxBaseCap bounds the ring buffer that is pre-allocated up front,
// so very large memories still grow on demand.
const maxBaseCap = 1 << 16

// Transition is one recorded environment step.
// It is not modified once it has been pushed.
type Transition struct {

	// observation the action was taken in
	State []float32

	// index of the action taken
	Action int

	// scalar reward received for the action
	Reward float32

	// observation after the action
	NextState []float32

	// true if NextState is terminal for the episode
	Done bool
}

// Memory is a bounded FIFO of Transitions: once Cap transitions are stored,
// each Push evicts the oldest one.  Push and Sample are serialized with a mutex
// so a Memory can be shared by several rollout goroutines.
type Memory struct {
	mu       sync.Mutex
	capacity int
	items    deque.Deque[Transition]
	rnd      *rand.Rand
}

// New returns a Memory holding at most capacity transitions.
// rnd is the source used for sampling -- if nil, a source seeded with 1 is used.
func New(capacity int, rnd *rand.Rand) (*Memory, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrCapacity, capacity)
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(1))
	}
	mem := &Memory{capacity: capacity, rnd: rnd}
	mem.items.SetBaseCap(min(capacity, maxBaseCap))
	return mem, nil
}

// Cap returns the maximum number of transitions held.
func (mem *Memory) Cap() int {
	return mem.capacity
}

// Len returns the number of transitions currently held.
func (mem *Memory) Len() int {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	return mem.items.Len()
}

// Push appends tr, evicting the oldest transition if the memory is full.
func (mem *Memory) Push(tr Transition) {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	if mem.items.Len() >= mem.capacity {
		mem.items.PopFront()
	}
	mem.items.PushBack(tr)
}

// At returns the i-th stored transition, oldest first.
// Panics if i is out of range, like a slice index.
func (mem *Memory) At(i int) Transition {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	return mem.items.At(i)
}

// Items returns a copy of all stored transitions, oldest first.
func (mem *Memory) Items() []Transition {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	n := mem.items.Len()
	its := make([]Transition, n)
	for i := 0; i < n; i++ {
		its[i] = mem.items.At(i)
	}
	return its
}

// Reset removes all transitions.
func (mem *Memory) Reset() {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.items.Clear()
}

// Sample returns k distinct transitions drawn uniformly at random without
// replacement.  If fewer than k transitions are held it returns
// ErrInsufficientData and the memory is left unchanged -- it never
// returns a smaller batch.
func (mem *Memory) Sample(k int) ([]Transition, error) {
	if k <= 0 {
		return nil, fmt.Errorf("replay: sample size must be positive, got %d", k)
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	n := mem.items.Len()
	if n < k {
		return nil, fmt.Errorf("%w: have %d transitions, need %d", ErrInsufficientData, n, k)
	}
	// Floyd's algorithm: k distinct indexes in O(k)
	chosen := make(map[int]struct{}, k)
	batch := make([]Transition, 0, k)
	for j := n - k; j < n; j++ {
		idx := mem.rnd.Intn(j + 1)
		if _, has := chosen[idx]; has {
			idx = j
		}
		chosen[idx] = struct{}{}
		batch = append(batch, mem.items.At(idx))
	}
	return batch, nil
}

// SizeBytes estimates the memory held by the stored transitions,
// assuming all observations have the length of the newest one.
func (mem *Memory) SizeBytes() datasize.ByteSize {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	n := mem.items.Len()
	if n == 0 {
		return 0
	}
	back := mem.items.Back()
	per := uint64(unsafe.Sizeof(back)) + uint64(len(back.State)+len(back.NextState))*4
	return datasize.ByteSize(uint64(n) * per)
}

// String returns a short summary, e.g., "Memory: 32 / 2000 (8.50 KB)"
func (mem *Memory) String() string {
	return fmt.Sprintf("Memory: %d / %d (%s)", mem.Len(), mem.capacity, mem.SizeBytes().HumanReadable())
}
