package enrichment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"comebackwatch/internal/components/assert"
	"comebackwatch/internal/components/chrono"
	"comebackwatch/internal/components/telemetry"
	"comebackwatch/internal/extractor"
	"comebackwatch/internal/fetch"
	"comebackwatch/internal/model"
	"comebackwatch/lib/htmlutil"
	"comebackwatch/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/enrichment")

const (
	report_stage_fetch_detail = "stage.fetch-detail"
	report_stage_blocked      = "stage.blocked"
	report_stage_enriched     = "stage.enriched"
)

const (
	HeadingDetails = "Album Details"
	HeadingTracks  = "Tracklist"
	HeadingVideos  = "Music Videos"
	HeadingTeasers = "Teasers"
)

// DetailHeadings are the sections requested from every detail page.
var DetailHeadings = []string{HeadingDetails, HeadingTracks, HeadingVideos, HeadingTeasers}

type Fetcher interface {
	Fetch(ctx context.Context, link string) ([]byte, error)
	NewPacer() *fetch.Pacer
	Policy() fetch.Policy
}

type Options struct {
	Concurrency int
	// PacedConcurrency caps Concurrency when pacing is enabled.
	PacedConcurrency int
	RefreshInterval  time.Duration
	Force            bool
}

func DefaultOptions() Options {
	return Options{
		Concurrency:      4,
		PacedConcurrency: 2,
		RefreshInterval:  72 * time.Hour,
	}
}

// maxFailureError caps the error text kept per failure, a parse error can
// quote a large part of the page.
const maxFailureError = 300

type Failure struct {
	EntityKey string `json:"entity_key"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

type Result struct {
	// Entities is the full entity list with enriched entities replaced.
	Entities  []model.Entity
	Freshness model.Freshness

	OK           int
	Failed       int
	SkippedFresh int
	// NotAttempted counts queued entities left alone after a challenge.
	NotAttempted int
	Failures     []Failure
	Blocked      bool
	Warnings     []string
}

type outcome struct {
	attempted bool
	entity    model.Entity
	fetchedAt time.Time
	err       error
}

// Stage enriches stale entities from their detail pages over a bounded
// worker pool.
type Stage struct {
	fetcher   Fetcher
	extractor extractor.Extractor
	clock     chrono.API
	tel       telemetry.API
}

func NewStage(fetcher Fetcher, ext extractor.Extractor, clock chrono.API, tel telemetry.API) Stage {
	assert.NotNil(fetcher)
	assert.NotNil(ext)
	assert.NotNil(clock)
	assert.NotNil(tel)

	return Stage{
		fetcher:   fetcher,
		extractor: ext,
		clock:     clock,
		tel:       telemetry.NewScopedAPI("enrichment", tel),
	}
}

func (s Stage) workerCount(opts Options, queued int) int {
	n := opts.Concurrency
	if n < 1 {
		n = 1
	}
	if s.fetcher.Policy().Pacing && opts.PacedConcurrency > 0 && n > opts.PacedConcurrency {
		n = opts.PacedConcurrency
	}
	if n > queued {
		n = queued
	}
	return n
}

func (s Stage) Run(ctx context.Context, entities []model.Entity, freshness model.Freshness, opts Options) (Result, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	now := s.clock.Now()
	res := Result{Freshness: model.Freshness{}}
	for k, v := range freshness {
		res.Freshness[k] = v
	}

	var queue []model.Entity
	for _, e := range entities {
		if e.Absent {
			continue
		}
		if !NeedsRefresh(freshness, e.EntityKey, now, opts.RefreshInterval, opts.Force) {
			res.SkippedFresh++
			continue
		}
		queue = append(queue, e)
	}

	outcomes := make([]outcome, len(queue))
	var next atomic.Int64
	var stop atomic.Bool

	workers := s.workerCount(opts, len(queue))
	span.SetAttributes(
		attribute.Int("queued", len(queue)),
		attribute.Int("workers", workers),
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.work(ctx, queue, outcomes, &next, &stop)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	replaced := map[string]model.Entity{}
	for _, out := range outcomes {
		if !out.attempted {
			res.NotAttempted++
			continue
		}
		if out.err == nil {
			replaced[out.entity.EntityKey] = out.entity
			res.Freshness[out.entity.EntityKey] = model.FreshnessRecord{LastFetchedAt: out.fetchedAt}
			res.OK++
			continue
		}
		if errors.Is(out.err, fetch.ErrChallenge) {
			continue
		}
		kind := "parse"
		if k, ok := fetch.KindOf(out.err); ok {
			kind = k.String()
		}
		res.Failed++
		res.Failures = append(res.Failures, Failure{
			EntityKey: out.entity.EntityKey,
			Kind:      kind,
			Error:     textutil.Truncate(out.err.Error(), maxFailureError),
		})
	}

	res.Blocked = stop.Load()
	if res.Blocked {
		s.tel.ReportWarning(report_stage_blocked, res.NotAttempted)
		span.SetStatus(codes.Error, "blocked")
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"anti-bot challenge during enrichment, %d queued entities were not attempted",
			res.NotAttempted,
		))
	}

	res.Entities = make([]model.Entity, 0, len(entities))
	for _, e := range entities {
		if updated, ok := replaced[e.EntityKey]; ok {
			e = updated
		}
		res.Entities = append(res.Entities, e)
	}
	model.SortEntities(res.Entities)

	s.tel.ReportCount(report_stage_enriched, int64(res.OK))
	return res, nil
}

// work claims queue items until the queue is drained or a challenge has
// been seen. Each worker paces itself.
func (s Stage) work(ctx context.Context, queue []model.Entity, outcomes []outcome, next *atomic.Int64, stop *atomic.Bool) {
	pacer := s.fetcher.NewPacer()
	for {
		if stop.Load() || ctx.Err() != nil {
			return
		}
		i := int(next.Add(1) - 1)
		if i >= len(queue) {
			return
		}
		entity := queue[i]

		err := pacer.Wait(ctx)
		if err != nil {
			return
		}
		// another worker may have hit a challenge while this one was paced
		if stop.Load() {
			return
		}

		outcomes[i].attempted = true
		outcomes[i].entity = entity

		body, err := s.fetcher.Fetch(ctx, entity.EntityKey)
		if err != nil {
			if errors.Is(err, fetch.ErrChallenge) {
				stop.Store(true)
			} else if ctx.Err() == nil {
				s.tel.ReportWarning(report_stage_fetch_detail, entity.EntityKey, err)
			}
			outcomes[i].err = err
			continue
		}

		enriched, err := s.parse(body, entity)
		if err != nil {
			outcomes[i].err = err
			continue
		}
		outcomes[i].entity = enriched
		outcomes[i].fetchedAt = s.clock.Now()
	}
}

func (s Stage) parse(body []byte, entity model.Entity) (model.Entity, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return entity, fmt.Errorf("parse detail page: %w", err)
	}
	doc.Url, _ = url.Parse(entity.EntityKey)

	sections := s.extractor.LocateSections(doc, DetailHeadings)

	details, ok := sections[HeadingDetails]
	text := details.Text
	if !ok || strings.TrimSpace(text) == "" {
		text = strings.Join(htmlutil.SelectionLines(doc.Find("body")), "\n")
	}

	attrs := model.Attributes{Release: map[string]string{}}
	applyLabels(WindowLabels(text, albumLabels), albumLabels, &attrs)
	if tracks, ok := sections[HeadingTracks]; ok && tracks.Text != "" {
		attrs.Release["tracklist"] = tracks.Text
	}

	if attrs.Group == "" && len(entity.Seed.AuxLines) > 0 {
		attrs.Group = entity.Seed.AuxLines[0]
	}
	if attrs.Name == "" && len(entity.Seed.AuxLines) > 1 {
		attrs.Name = entity.Seed.AuxLines[1]
	}

	var links, media []string
	for _, heading := range DetailHeadings {
		section := sections[heading]
		links = append(links, section.Links...)
		media = append(media, section.Images...)
	}
	attrs.Links = boundedUnique(links, maxReferences)
	attrs.Media = boundedUnique(media, maxReferences)

	fetchedAt := s.clock.Now()
	entity.Attributes = attrs
	entity.ContentHash = ContentHash(attrs)
	entity.FetchedAt = &fetchedAt
	return entity, nil
}
