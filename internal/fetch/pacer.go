package fetch

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// Pacer is a cooperative gate callers pass before each request to look
// less like a bot. One pacer may be shared by many urls, its burst counter
// is safe for concurrent use.
type Pacer struct {
	policy Policy
	sleep  SleepFunc
	count  atomic.Int64
}

func NewPacer(policy Policy, sleep SleepFunc) *Pacer {
	if sleep == nil {
		sleep = Sleep
	}
	return &Pacer{policy: policy, sleep: sleep}
}

// Wait sleeps a random delay in [MinDelay, MaxDelay], every BurstSize-th
// call it also sleeps a random cooldown in [BurstCooldownMin,
// BurstCooldownMax]. It is a no-op when pacing is disabled.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || !p.policy.Pacing {
		return nil
	}
	n := p.count.Add(1)

	delay := uniform(p.policy.MinDelay, p.policy.MaxDelay)
	if p.policy.BurstSize > 0 && n%int64(p.policy.BurstSize) == 0 {
		delay += uniform(p.policy.BurstCooldownMin, p.policy.BurstCooldownMax)
	}
	return p.sleep(ctx, delay)
}

// Calls returns how many times Wait was called.
func (p *Pacer) Calls() int64 {
	return p.count.Load()
}

func uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}

type SleepFunc = func(ctx context.Context, d time.Duration) error

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
