package fetch

import "time"

// Policy holds the politeness knobs of a fetch campaign. None of the
// numeric defaults are load bearing, they can all be overridden from
// config or flags.
type Policy struct {
	Timeout     time.Duration `json:"timeout"`
	MaxRetries  int           `json:"max_retries"`
	BackoffBase time.Duration `json:"backoff_base"`
	JitterMin   time.Duration `json:"jitter_min"`
	JitterMax   time.Duration `json:"jitter_max"`
	// MaxRPS is a hard ceiling on requests per second for a single
	// fetcher, 0 disables it.
	MaxRPS float64 `json:"max_rps"`

	Pacing           bool          `json:"pacing"`
	MinDelay         time.Duration `json:"min_delay"`
	MaxDelay         time.Duration `json:"max_delay"`
	BurstSize        int           `json:"burst_size"`
	BurstCooldownMin time.Duration `json:"burst_cooldown_min"`
	BurstCooldownMax time.Duration `json:"burst_cooldown_max"`
}

func DefaultPolicy() Policy {
	return Policy{
		Timeout:     25 * time.Second,
		MaxRetries:  2,
		BackoffBase: 600 * time.Millisecond,
		JitterMin:   0,
		JitterMax:   250 * time.Millisecond,
		MaxRPS:      2,

		Pacing:           false,
		MinDelay:         1500 * time.Millisecond,
		MaxDelay:         4 * time.Second,
		BurstSize:        8,
		BurstCooldownMin: 10 * time.Second,
		BurstCooldownMax: 25 * time.Second,
	}
}

// Backoff returns the delay before retry number `attempt` (0 based), not
// counting jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	return p.BackoffBase * time.Duration(1<<attempt)
}
