package commands

import (
	"time"

	"comebackwatch/internal/enrichment"
	"comebackwatch/internal/fetch"
	"comebackwatch/internal/pipeline"
	"comebackwatch/internal/views"

	"github.com/spf13/cobra"
)

type flags struct {
	config     string
	verbose    bool
	archiveRaw bool

	maxPages int
	months   int

	concurrency      int
	pacing           bool
	minDelay         time.Duration
	maxDelay         time.Duration
	burstSize        int
	burstCooldownMin time.Duration
	burstCooldownMax time.Duration
	timeout          time.Duration
	retries          int

	refresh time.Duration
	force   bool

	horizonDays int
	recentDays  int

	changed func(name string) bool
}

func (f *flags) register(cmd *cobra.Command) {
	policy := fetch.DefaultPolicy()
	enrich := enrichment.DefaultOptions()
	view := views.DefaultOptions()
	run := pipeline.DefaultOptions()

	fs := cmd.PersistentFlags()
	fs.StringVar(&f.config, "config", "comebackwatch.json5", "The config file to read.")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Log debug output to stderr.")
	fs.BoolVar(&f.archiveRaw, "archive-raw", false, "Write every http exchange to <state dir>/raw.")

	fs.IntVar(&f.maxPages, "max-pages", run.MaxPages, "Maximum pages followed per discovery seed.")
	fs.IntVar(&f.months, "months", 0, "Maximum index pages processed by extraction, 0 means all.")

	fs.IntVar(&f.concurrency, "concurrency", enrich.Concurrency, "Enrichment workers.")
	fs.BoolVar(&f.pacing, "pacing", policy.Pacing, "Wait a human-like delay before every request.")
	fs.DurationVar(&f.minDelay, "min-delay", policy.MinDelay, "Minimum pacing delay.")
	fs.DurationVar(&f.maxDelay, "max-delay", policy.MaxDelay, "Maximum pacing delay.")
	fs.IntVar(&f.burstSize, "burst-size", policy.BurstSize, "Requests between pacing cooldowns.")
	fs.DurationVar(&f.burstCooldownMin, "burst-cooldown-min", policy.BurstCooldownMin, "Minimum pacing cooldown.")
	fs.DurationVar(&f.burstCooldownMax, "burst-cooldown-max", policy.BurstCooldownMax, "Maximum pacing cooldown.")
	fs.DurationVar(&f.timeout, "timeout", policy.Timeout, "Timeout of a single request.")
	fs.IntVar(&f.retries, "retries", policy.MaxRetries, "Retries of a transient fetch failure.")

	fs.DurationVar(&f.refresh, "refresh", enrich.RefreshInterval, "Re-enrich entities last fetched longer ago than this.")
	fs.BoolVar(&f.force, "force", false, "Re-enrich every entity regardless of freshness.")

	fs.IntVar(&f.horizonDays, "horizon-days", view.HorizonDays, "Days ahead included in the upcoming view.")
	fs.IntVar(&f.recentDays, "recent-days", view.RecentDays, "Days back included in the recent view.")

	f.changed = func(name string) bool {
		flag := fs.Lookup(name)
		return flag != nil && flag.Changed
	}
}

// policy applies explicitly set flags over the config's fetch policy.
func (f *flags) policy(base fetch.Policy) fetch.Policy {
	if f.changed("pacing") {
		base.Pacing = f.pacing
	}
	if f.changed("min-delay") {
		base.MinDelay = f.minDelay
	}
	if f.changed("max-delay") {
		base.MaxDelay = f.maxDelay
	}
	if f.changed("burst-size") {
		base.BurstSize = f.burstSize
	}
	if f.changed("burst-cooldown-min") {
		base.BurstCooldownMin = f.burstCooldownMin
	}
	if f.changed("burst-cooldown-max") {
		base.BurstCooldownMax = f.burstCooldownMax
	}
	if f.changed("timeout") {
		base.Timeout = f.timeout
	}
	if f.changed("retries") {
		base.MaxRetries = f.retries
	}
	return base
}

// options applies flags over the pipeline options built from the config.
func (f *flags) options(base pipeline.Options) pipeline.Options {
	if f.changed("max-pages") {
		base.MaxPages = f.maxPages
	}
	if f.changed("months") {
		base.Months = f.months
	}
	if f.changed("concurrency") {
		base.Enrichment.Concurrency = f.concurrency
	}
	if f.changed("refresh") {
		base.Enrichment.RefreshInterval = f.refresh
	}
	base.Enrichment.Force = f.force
	if f.changed("horizon-days") {
		base.Views.HorizonDays = f.horizonDays
	}
	if f.changed("recent-days") {
		base.Views.RecentDays = f.recentDays
	}
	return base
}
