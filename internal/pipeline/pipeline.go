// Package pipeline runs the harvesting stages against a state store. Every
// stage reads the full output of the stage before it from the store and
// writes its own full output plus a summary, so any stage can be rerun on
// its own.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"comebackwatch/internal/components/assert"
	"comebackwatch/internal/components/chrono"
	"comebackwatch/internal/components/telemetry"
	"comebackwatch/internal/discovery"
	"comebackwatch/internal/enrichment"
	"comebackwatch/internal/extractor"
	"comebackwatch/internal/fetch"
	"comebackwatch/internal/model"
	"comebackwatch/internal/store"
	"comebackwatch/internal/views"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/pipeline")

const (
	StageDiscover = "discover"
	StageEvents   = "events"
	StageEnrich   = "enrich"
	StageViews    = "views"
	StageDelta    = "delta"
	StageRun      = "run"
)

const (
	report_pipeline_stage  = "pipeline.stage"
	report_pipeline_notify = "pipeline.notify"
)

type Fetcher interface {
	Fetch(ctx context.Context, link string) ([]byte, error)
	NewPacer() *fetch.Pacer
	Policy() fetch.Policy
}

// Notifier is told about every non-empty delta.
type Notifier interface {
	Send(ctx context.Context, d model.Delta, names map[string]string) error
}

type Options struct {
	Discovery discovery.Options
	// MaxPages bounds the pagination of each discovery seed.
	MaxPages int
	// Months bounds how many index pages extraction processes, 0 means all.
	Months     int
	Enrichment enrichment.Options
	Views      views.Options
	// Notifier is optional.
	Notifier Notifier
}

func DefaultOptions() Options {
	return Options{
		Discovery:  discovery.DefaultOptions(),
		MaxPages:   6,
		Enrichment: enrichment.DefaultOptions(),
		Views:      views.DefaultOptions(),
	}
}

type Pipeline struct {
	store     store.Store
	fetcher   Fetcher
	extractor extractor.Extractor
	clock     chrono.API
	tel       telemetry.API
	opts      Options
}

func New(s store.Store, fetcher Fetcher, ext extractor.Extractor, clock chrono.API, tel telemetry.API, opts Options) Pipeline {
	assert.NotNil(s)
	assert.NotNil(fetcher)
	assert.NotNil(ext)
	assert.NotNil(clock)
	assert.NotNil(tel)

	return Pipeline{
		store:     s,
		fetcher:   fetcher,
		extractor: ext,
		clock:     clock,
		tel:       tel,
		opts:      opts,
	}
}

func (p Pipeline) newSummary(stage string) *model.Summary {
	return &model.Summary{
		RunID:     uuid.NewString(),
		Stage:     stage,
		StartedAt: p.clock.Now(),
		Warnings:  []string{},
	}
}

// summaryWriter is shared by the stages of one invocation.
type summaryWriter struct {
	summary *model.Summary
}

func (s *summaryWriter) warn(warnings ...string) {
	s.summary.Warnings = append(s.summary.Warnings, warnings...)
}

// finish stamps and persists the summary. A failed stage still gets its
// summary written, the stage error wins over a failure to write it.
func (p Pipeline) finish(ctx context.Context, summary *model.Summary, stageErr error) (model.Summary, error) {
	summary.FinishedAt = p.clock.Now()
	if stageErr != nil {
		summary.Warnings = append(summary.Warnings, stageErr.Error())
		p.tel.ReportBroken(report_pipeline_stage, summary.Stage, stageErr)
	}
	// an interrupted stage leaves the store as it was
	if stageErr == nil || !errors.Is(stageErr, context.Canceled) {
		err := store.Save(context.WithoutCancel(ctx), p.store, store.SummaryDoc(summary.Stage), summary)
		if err != nil && stageErr == nil {
			return *summary, fmt.Errorf("write summary: %w", err)
		}
	}
	return *summary, stageErr
}

type stageFunc func(ctx context.Context, w *summaryWriter) error

func (p Pipeline) runStage(ctx context.Context, stage string, fn stageFunc) (model.Summary, error) {
	ctx, span := tracer.Start(ctx, stage)
	defer span.End()

	summary := p.newSummary(stage)
	span.SetAttributes(attribute.String("run_id", summary.RunID))

	err := fn(ctx, &summaryWriter{summary: summary})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return p.finish(ctx, summary, err)
}

func (p Pipeline) Discover(ctx context.Context) (model.Summary, error) {
	return p.runStage(ctx, StageDiscover, p.discover)
}

func (p Pipeline) Events(ctx context.Context) (model.Summary, error) {
	return p.runStage(ctx, StageEvents, p.events)
}

func (p Pipeline) Enrich(ctx context.Context) (model.Summary, error) {
	return p.runStage(ctx, StageEnrich, p.enrich)
}

func (p Pipeline) Views(ctx context.Context) (model.Summary, error) {
	return p.runStage(ctx, StageViews, p.views)
}

func (p Pipeline) Delta(ctx context.Context) (model.Summary, error) {
	return p.runStage(ctx, StageDelta, p.delta)
}

// Run executes every stage in order under a single summary. A challenge
// during discovery or extraction stops fetching, the views are still
// rebuilt from the state at hand but no snapshot is committed.
func (p Pipeline) Run(ctx context.Context) (model.Summary, error) {
	return p.runStage(ctx, StageRun, func(ctx context.Context, w *summaryWriter) error {
		for _, fn := range []stageFunc{p.discover, p.events} {
			err := fn(ctx, w)
			if err != nil {
				return err
			}
			if w.summary.Blocked {
				w.warn("run stopped fetching after an anti-bot challenge, delta was not committed")
				return p.views(ctx, w)
			}
		}
		for _, fn := range []stageFunc{p.enrich, p.views, p.delta} {
			err := fn(ctx, w)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
