package session

import "context"

// Result is the outcome of finalizing one run. Session is nil when nothing
// was saved.
type Result struct {
	RunID   string
	Session *ScanSession
	Err     error
}

// Recorder finalizes every run an engine stops, whatever stopped it.
type Recorder struct {
	agg *Aggregator
	ctx context.Context
}

// NewRecorder creates a recorder that saves through agg. ctx bounds every
// save it performs.
func NewRecorder(ctx context.Context, agg *Aggregator) *Recorder {
	return &Recorder{agg: agg, ctx: ctx}
}

// Watch finalizes each run stopped by n and reports the result to onResult,
// which may be nil.
func (r *Recorder) Watch(n StopNotifier, onResult func(Result)) {
	n.OnStopped(func(cp Capture) {
		s, err := r.agg.FinalizeCapture(r.ctx, cp)
		if onResult != nil {
			onResult(Result{RunID: cp.RunID, Session: s, Err: err})
		}
	})
}
