package delta

import (
	"context"
	"errors"
	"fmt"

	"comebackwatch/internal/components/assert"
	"comebackwatch/internal/components/chrono"
	"comebackwatch/internal/components/telemetry"
	"comebackwatch/internal/model"
	"comebackwatch/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/delta")

const (
	report_engine_unreadable = "engine.unreadable-snapshot"
	report_engine_events     = "engine.events-changed"
	report_engine_entities   = "engine.entities-changed"
)

type Engine struct {
	store store.Store
	clock chrono.API
	tel   telemetry.API
}

func NewEngine(s store.Store, clock chrono.API, tel telemetry.API) Engine {
	assert.NotNil(s)
	assert.NotNil(clock)
	assert.NotNil(tel)

	return Engine{
		store: s,
		clock: clock,
		tel:   telemetry.NewScopedAPI("delta", tel),
	}
}

type Result struct {
	Delta    model.Delta
	Warnings []string
}

func presentEntities(entities []model.Entity) []model.Entity {
	out := make([]model.Entity, 0, len(entities))
	for _, e := range entities {
		if !e.Absent {
			out = append(out, e)
		}
	}
	return out
}

// Commit diffs events.json and the present entities of entities.json
// against the committed snapshot, writes delta.json and then replaces
// both snapshots in one commit. Until that commit succeeds a rerun
// computes the same delta.
func (e Engine) Commit(ctx context.Context) (Result, error) {
	ctx, span := tracer.Start(ctx, "Commit")
	defer span.End()

	res, err := e.commit(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(
		attribute.Int("events_added", len(res.Delta.Events.Added)),
		attribute.Int("events_removed", len(res.Delta.Events.Removed)),
		attribute.Int("events_updated", len(res.Delta.Events.Updated)),
	)
	return res, nil
}

func (e Engine) commit(ctx context.Context) (Result, error) {
	events, err := store.Load[model.EventSet](ctx, e.store, store.DocEvents)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, fmt.Errorf("%s does not exist, run the events stage first", store.DocEvents)
	}
	if err != nil {
		return Result{}, err
	}

	var warnings []string
	entities, warning, err := store.LoadOptional[model.EntitySet](ctx, e.store, store.DocEntities)
	if err != nil {
		return Result{}, err
	}
	if warning != "" {
		warnings = append(warnings, warning)
	}

	prevEvents, warning, err := store.LoadOptional[model.EventSnapshot](ctx, e.store, store.DocSnapshotEvents)
	if err != nil {
		return Result{}, err
	}
	if warning != "" {
		e.tel.ReportWarning(report_engine_unreadable, store.DocSnapshotEvents)
		warnings = append(warnings, warning)
	}
	prevEntities, warning, err := store.LoadOptional[model.EntitySnapshot](ctx, e.store, store.DocSnapshotEntities)
	if err != nil {
		return Result{}, err
	}
	if warning != "" {
		e.tel.ReportWarning(report_engine_unreadable, store.DocSnapshotEntities)
		warnings = append(warnings, warning)
	}

	currentEvents := make([]model.Event, len(events.Events))
	copy(currentEvents, events.Events)
	model.SortEvents(currentEvents)
	currentEntities := presentEntities(entities.Entities)
	model.SortEntities(currentEntities)

	now := e.clock.Now()
	d := Compute(prevEvents.Events, prevEntities.Entities, currentEvents, currentEntities)
	d.GeneratedAt = now
	d.PreviousCommit = prevEvents.CommitID
	if prevEntities.CommitID != prevEvents.CommitID {
		// both snapshots are always committed together
		warnings = append(warnings, fmt.Sprintf(
			"snapshot commits disagree (%q and %q)",
			prevEvents.CommitID, prevEntities.CommitID,
		))
	}
	d.Commit = uuid.NewString()

	e.tel.ReportCount(report_engine_events, int64(len(d.Events.Added)+len(d.Events.Removed)+len(d.Events.Updated)))
	e.tel.ReportCount(report_engine_entities, int64(len(d.Entities.Added)+len(d.Entities.Removed)+len(d.Entities.Updated)))

	err = store.Save(ctx, e.store, store.DocDelta, d)
	if err != nil {
		return Result{}, fmt.Errorf("write delta: %w", err)
	}

	err = store.SaveMany(ctx, e.store, map[string]any{
		store.DocSnapshotEvents: model.EventSnapshot{
			CommitID:    d.Commit,
			CommittedAt: now,
			Events:      currentEvents,
		},
		store.DocSnapshotEntities: model.EntitySnapshot{
			CommitID:    d.Commit,
			CommittedAt: now,
			Entities:    currentEntities,
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("commit snapshot: %w", err)
	}

	return Result{Delta: d, Warnings: warnings}, nil
}
