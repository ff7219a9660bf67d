package commands

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"comebackwatch/internal/discovery"
	"comebackwatch/internal/extractor"
	"comebackwatch/internal/fetch"
	"comebackwatch/internal/notify"
	"comebackwatch/internal/pipeline"
	"comebackwatch/internal/store"
	"comebackwatch/lib/configutil"
)

const stateDirEnv = "COMEBACKWATCH_STATE_DIR"

// FetchConfig holds the politeness settings that make sense to pin in a
// config file, durations are strings like "1500ms".
type FetchConfig struct {
	Pacing   bool     `json:"pacing"`
	MaxRPS   *float64 `json:"max_rps"`
	Bypass   bool     `json:"bypass"`
	Timeout  string   `json:"timeout"`
	MinDelay string   `json:"min_delay"`
	MaxDelay string   `json:"max_delay"`
}

type Config struct {
	StateDir       string           `json:"state_dir"`
	Seeds          []discovery.Seed `json:"seeds"`
	IndexPattern   string           `json:"index_pattern"`
	ExcludePattern string           `json:"exclude_pattern"`
	DetailPath     string           `json:"detail_path"`
	Fetch          FetchConfig      `json:"fetch"`
	Store          store.Config     `json:"store"`
	Notify         notify.Options   `json:"notify"`
	// Schedule is the cron spec used by the schedule command.
	Schedule string `json:"schedule"`
}

const defaultSchedule = "0 */6 * * *"

func readConfig(path string) (Config, error) {
	cfg, err := configutil.ReadOptional[Config](path, Config{})
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) stateDir() (string, error) {
	fallback := c.StateDir
	if fallback == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		fallback = filepath.Join(home, ".comebackwatch")
	}
	return configutil.EnvOr(stateDirEnv, fallback), nil
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("fetch.%s: %w", field, err)
	}
	return d, nil
}

func (c Config) policy() (fetch.Policy, error) {
	policy := fetch.DefaultPolicy()
	policy.Pacing = c.Fetch.Pacing
	if c.Fetch.MaxRPS != nil {
		policy.MaxRPS = *c.Fetch.MaxRPS
	}

	var err error
	policy.Timeout, err = parseDuration("timeout", c.Fetch.Timeout, policy.Timeout)
	if err != nil {
		return fetch.Policy{}, err
	}
	policy.MinDelay, err = parseDuration("min_delay", c.Fetch.MinDelay, policy.MinDelay)
	if err != nil {
		return fetch.Policy{}, err
	}
	policy.MaxDelay, err = parseDuration("max_delay", c.Fetch.MaxDelay, policy.MaxDelay)
	if err != nil {
		return fetch.Policy{}, err
	}
	return policy, nil
}

func (c Config) options() (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()
	if len(c.Seeds) > 0 {
		opts.Discovery.Seeds = c.Seeds
	}
	if c.IndexPattern != "" {
		re, err := regexp.Compile(c.IndexPattern)
		if err != nil {
			return pipeline.Options{}, fmt.Errorf("index_pattern: %w", err)
		}
		opts.Discovery.IndexPattern = re
	}
	if c.ExcludePattern != "" {
		re, err := regexp.Compile(c.ExcludePattern)
		if err != nil {
			return pipeline.Options{}, fmt.Errorf("exclude_pattern: %w", err)
		}
		opts.Discovery.ExcludePattern = re
	}
	return opts, nil
}

func (c Config) extractor() (extractor.Cards, error) {
	cards := extractor.NewCards()
	if c.DetailPath != "" {
		re, err := regexp.Compile(c.DetailPath)
		if err != nil {
			return extractor.Cards{}, fmt.Errorf("detail_path: %w", err)
		}
		cards.DetailPath = re
	}
	return cards, nil
}

// referer is the root of the first seed's site.
func referer(seeds []discovery.Seed) string {
	if len(seeds) == 0 {
		return ""
	}
	u, err := url.Parse(seeds[0].URL)
	if err != nil || u.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s://%s/", u.Scheme, u.Host)
}
