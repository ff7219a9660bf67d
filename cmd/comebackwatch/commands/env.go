package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"comebackwatch/internal/components/chrono"
	"comebackwatch/internal/components/telemetry"
	"comebackwatch/internal/fetch"
	"comebackwatch/internal/model"
	"comebackwatch/internal/notify"
	"comebackwatch/internal/pipeline"
	"comebackwatch/internal/store"
	"comebackwatch/lib/restyutil"
)

type environment struct {
	config   Config
	stateDir string
	clock    chrono.API
	tel      telemetry.API
	store    store.Store
	pipeline pipeline.Pipeline
}

func setup(ctx context.Context, f *flags) (environment, error) {
	cfg, err := readConfig(f.config)
	if err != nil {
		return environment{}, err
	}
	stateDir, err := cfg.stateDir()
	if err != nil {
		return environment{}, err
	}

	policy, err := cfg.policy()
	if err != nil {
		return environment{}, err
	}
	policy = f.policy(policy)

	opts, err := cfg.options()
	if err != nil {
		return environment{}, err
	}
	opts = f.options(opts)
	if cfg.Notify.Enabled() {
		opts.Notifier = notify.NewMailer(cfg.Notify)
	}

	cards, err := cfg.extractor()
	if err != nil {
		return environment{}, err
	}

	tel := telemetry.SlogAPI{}
	clock := chrono.NewStandardImpl()

	fetchOpts := fetch.Options{
		Referer: referer(opts.Discovery.Seeds),
		Bypass:  cfg.Fetch.Bypass,
	}
	if f.archiveRaw {
		out, err := restyutil.NewFilesystemOutput(filepath.Join(stateDir, "raw"))
		if err != nil {
			return environment{}, err
		}
		fetchOpts.Archive = out
		slog.Info("archiving raw exchanges", "dir", out.Dir())
	}
	fetcher := fetch.NewFetcher(policy, tel, fetchOpts)

	s, err := store.Open(ctx, cfg.Store, stateDir, clock, tel)
	if err != nil {
		return environment{}, fmt.Errorf("open store: %w", err)
	}
	slog.Debug("opened state store", "backend", cfg.Store.Backend, "state_dir", stateDir)

	return environment{
		config:   cfg,
		stateDir: stateDir,
		clock:    clock,
		tel:      tel,
		store:    s,
		pipeline: pipeline.New(s, fetcher, cards, clock, tel, opts),
	}, nil
}

func (e environment) Close() {
	err := e.store.Close()
	if err != nil {
		slog.Warn("failed to close store", "err", err)
	}
}

func printSummary(summary model.Summary) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary)
}
