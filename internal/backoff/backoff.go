/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package backoff implements the exponential retry delay applied to failed
// reconciliation attempts.
package backoff

import (
	"time"
)

// Backoff computes deterministic exponential delays, capped at a maximum.
type Backoff struct {
	base time.Duration
	cap  time.Duration
}

func New(base time.Duration, cap time.Duration) *Backoff {
	if base <= 0 {
		base = 60 * time.Second
	}
	if cap < base {
		cap = base
	}
	return &Backoff{base: base, cap: cap}
}

// Next returns the delay before the given attempt, where retryCount is the
// number of consecutive failures so far (1 for the first retry). The delay
// doubles per failure and is capped; there is no jitter, so the schedule is
// reproducible.
func (b *Backoff) Next(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	d := b.base
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= b.cap {
			return b.cap
		}
	}
	if d > b.cap {
		return b.cap
	}
	return d
}
