// Package telemetry is the reporting surface of every pipeline component.
// Components never log directly, they report through API so tests can
// assert on what was reported.
package telemetry

import (
	"fmt"
)

// API is implemented by SlogAPI in production and Recorder in tests.
type API interface {
	// ReportBroken reports a component that failed in a way someone has to
	// look at.
	//
	// `id` names the component, not the line that failed: a failed detail
	// page request inside the enrichment pool is `enrichment.stage.fetch-detail`,
	// the cause goes in params. Ids are lowercase, underscores separate
	// words of a component, dashes separate a component from its operation.
	// Ids carry location, never severity.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something that degraded a run without breaking
	// it, a skipped page or an unreadable state document. Ids follow
	// ReportBroken.
	ReportWarning(id string, params ...any)

	ReportDebug(msg string, params ...any)

	// ReportCount reports the value of something at this point in time,
	// like the number of events extracted by a run. Counts are samples and
	// must not be summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a namespace, nested scopes compose
// into dotted ids.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) id(id string) string {
	return fmt.Sprintf("%s.%s", s.namespace, id)
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.id(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.id(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.id(id), count)
}
