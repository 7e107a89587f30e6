// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// minSweepSize is the client count below which idle buckets are kept.
const minSweepSize = 1024

// clientLimiter keeps one token bucket per client ID.
//
// Buckets that have refilled completely are dropped whenever the map grows
// past sweepAt. A full bucket behaves exactly like a new one, so eviction
// never resets a client's budget.
type clientLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	sweepAt  int
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if burst < 1 {
		burst = max(1, int(rps))
	}
	return &clientLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
		sweepAt:  minSweepSize,
	}
}

func (c *clientLimiter) allow(clientID string, now time.Time) bool {
	c.mu.Lock()
	l, ok := c.limiters[clientID]
	if !ok {
		if len(c.limiters) >= c.sweepAt {
			c.sweep(now)
		}
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[clientID] = l
	}
	c.mu.Unlock()
	return l.AllowN(now, 1)
}

// sweep must be called with mu held.
func (c *clientLimiter) sweep(now time.Time) {
	for id, l := range c.limiters {
		if l.TokensAt(now) >= float64(c.burst) {
			delete(c.limiters, id)
		}
	}
	c.sweepAt = max(minSweepSize, 2*len(c.limiters))
}

func (c *clientLimiter) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.limiters)
}
