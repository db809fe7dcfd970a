// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workpool

import (
	"context"
	"fmt"
	"runtime"

	"github.com/panjf2000/ants/v2"
)

// Pool is a bounded set of goroutines for CPU-bound work.
type Pool struct {
	pool *ants.Pool
}

// DefaultSize is runtime.NumCPU() / 2, with a minimum of 1.
func DefaultSize() int {
	size := runtime.NumCPU() / 2
	if size < 1 {
		size = 1
	}
	return size
}

// New creates a pool of size workers. A size below 1 selects DefaultSize.
func New(size int) (*Pool, error) {
	if size < 1 {
		size = DefaultSize()
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Pool{pool: pool}, nil
}

// Run executes fn on a pool worker and waits for it. If ctx ends first, Run
// returns ctx.Err() without waiting; fn still runs to completion in the
// background.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	if err := p.pool.Submit(func() {
		done <- fn()
	}); err != nil {
		return fmt.Errorf("submit task: %w", err)
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do is Run for tasks that produce a value.
func Do[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var result T
	err := p.Run(ctx, func() error {
		var err error
		result, err = fn()
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Stats describes the current pool occupancy.
type Stats struct {
	Capacity int
	Running  int
	Free     int
	Waiting  int
}

// Stats returns a snapshot of the pool occupancy.
func (p *Pool) Stats() Stats {
	return Stats{
		Capacity: p.pool.Cap(),
		Running:  p.pool.Running(),
		Free:     p.pool.Free(),
		Waiting:  p.pool.Waiting(),
	}
}

// Release stops the workers. The pool must not be used afterwards.
func (p *Pool) Release() {
	p.pool.Release()
}
