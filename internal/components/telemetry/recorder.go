package telemetry

import "sync"

// Report is a single call recorded by Recorder.
type Report struct {
	Kind   string
	ID     string
	Params []any
}

// Recorder is an API that keeps every report in memory, used by tests to
// assert that a component reported what it should have.
type Recorder struct {
	mutex   sync.Mutex
	reports []Report
	counts  map[string]int64
}

func NewRecorder() *Recorder {
	return &Recorder{counts: map[string]int64{}}
}

func (r *Recorder) add(kind, id string, params []any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, Report{Kind: kind, ID: id, Params: params})
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.add("broken", id, params)
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.add("warning", id, params)
}

func (r *Recorder) ReportDebug(msg string, params ...any) {}

func (r *Recorder) ReportCount(id string, count int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.counts[id] = count
}

// IDs returns the ids of every report of the given kind ("broken" or
// "warning") in the order they were made.
func (r *Recorder) IDs(kind string) []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var out []string
	for _, rep := range r.reports {
		if rep.Kind == kind {
			out = append(out, rep.ID)
		}
	}
	return out
}

func (r *Recorder) Count(id string) (int64, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	n, ok := r.counts[id]
	return n, ok
}
