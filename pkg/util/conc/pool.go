// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conc

import (
	ants "github.com/panjf2000/ants/v2"
)

// Pool is a goroutine pool backed by ants. It caps the number of tasks
// running at once; Submit blocks once the cap is reached unless the pool was
// created with WithNonBlocking.
type Pool struct {
	inner *ants.Pool
	opt   *poolOption
}

// NewPool creates a pool with the given capacity.
func NewPool(cap int, opts ...PoolOption) (*Pool, error) {
	opt := defaultPoolOption()
	for _, o := range opts {
		o(opt)
	}

	pool, err := ants.NewPool(cap, opt.antsOptions()...)
	if err != nil {
		return nil, err
	}

	return &Pool{
		inner: pool,
		opt:   opt,
	}, nil
}

// Submit schedules a task on the pool.
func (pool *Pool) Submit(task func()) error {
	return pool.inner.Submit(task)
}

// Running returns the number of tasks currently executing.
func (pool *Pool) Running() int {
	return pool.inner.Running()
}

// Cap returns the pool capacity.
func (pool *Pool) Cap() int {
	return pool.inner.Cap()
}

// Release closes the pool. Tasks already running are not interrupted.
func (pool *Pool) Release() {
	pool.inner.Release()
}
