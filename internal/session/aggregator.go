package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/proxiscan/internal/logging"
	"github.com/muurk/proxiscan/internal/scanerr"
)

// rememberedRuns bounds how many finished runs an aggregator keeps for
// deduplication. A run is only finalized again by the stop that ended it, so
// recent runs are enough.
const rememberedRuns = 32

// finalized is the remembered outcome for one run.
type finalized struct {
	session ScanSession
	err     error
	saving  bool
}

// Aggregator builds and saves one session per stopped run.
type Aggregator struct {
	mu        sync.Mutex
	saver     Saver
	runs      map[string]finalized
	order     []string
	lastSaved *ScanSession
	newID     func() string
}

// NewAggregator creates an aggregator that persists through saver.
func NewAggregator(saver Saver) *Aggregator {
	return &Aggregator{
		saver: saver,
		runs:  make(map[string]finalized),
		newID: uuid.NewString,
	}
}

// Finalize captures the last stopped run of c and persists it. It returns
// nil when there is no stopped run or the run found no devices.
func (a *Aggregator) Finalize(ctx context.Context, c Capturer) (*ScanSession, error) {
	cp, ok := c.Capture()
	if !ok {
		return nil, nil
	}
	return a.FinalizeCapture(ctx, cp)
}

// FinalizeCapture persists cp as a session. A run is saved at most once:
// later calls for the same run return the first result without saving again.
func (a *Aggregator) FinalizeCapture(ctx context.Context, cp Capture) (*ScanSession, error) {
	typ := TypeRadio
	if cp.Channel == "network" {
		typ = TypeNetwork
	}
	return a.finalize(ctx, cp.RunID, cp.Empty(), func() ScanSession {
		return ScanSession{
			Type:           typ,
			StartTime:      cp.StartTime,
			EndTime:        cp.EndTime,
			Duration:       cp.Duration,
			RadioDevices:   cloneRadio(cp),
			NetworkDevices: cloneNetwork(cp),
		}
	})
}

// FinalizeCombined persists the radio and network captures of a combined
// scan as one session spanning both runs.
func (a *Aggregator) FinalizeCombined(ctx context.Context, radio, network Capture) (*ScanSession, error) {
	start := radio.StartTime
	if start.IsZero() || (!network.StartTime.IsZero() && network.StartTime.Before(start)) {
		start = network.StartTime
	}
	end := radio.EndTime
	if network.EndTime.After(end) {
		end = network.EndTime
	}

	key := radio.RunID + "+" + network.RunID
	empty := radio.Empty() && network.Empty()
	return a.finalize(ctx, key, empty, func() ScanSession {
		return ScanSession{
			Type:           TypeCombined,
			StartTime:      start,
			EndTime:        end,
			Duration:       end.Sub(start),
			RadioDevices:   cloneRadio(radio),
			NetworkDevices: cloneNetwork(network),
		}
	})
}

func (a *Aggregator) finalize(ctx context.Context, runID string, empty bool, build func() ScanSession) (*ScanSession, error) {
	a.mu.Lock()
	if prev, ok := a.runs[runID]; ok {
		a.mu.Unlock()
		if prev.err != nil {
			return nil, prev.err
		}
		s := prev.session.Clone()
		return &s, nil
	}
	if empty {
		a.mu.Unlock()
		logging.Debug("Nothing to save for run", zap.String("run_id", runID))
		return nil, nil
	}

	s := build()
	s.ID = a.newID()
	// Claim the run before saving so a concurrent stop cannot save twice.
	a.runs[runID] = finalized{session: s, saving: true}
	a.order = append(a.order, runID)
	a.mu.Unlock()

	started := time.Now()
	err := a.saver.Save(ctx, s.Clone())

	a.mu.Lock()
	if err != nil {
		if scanerr.KindOf(err) != scanerr.KindPersistenceFailed {
			err = scanerr.PersistenceFailed("save session", err)
		}
	} else {
		saved := s.Clone()
		a.lastSaved = &saved
	}
	a.runs[runID] = finalized{session: s, err: err}
	a.pruneLocked()
	a.mu.Unlock()

	if err != nil {
		logging.Error("Failed to save scan session",
			zap.String("session_id", s.ID),
			zap.String("run_id", runID),
			zap.Error(err),
		)
		return nil, err
	}
	logging.LogSessionEvent(s.ID, "saved",
		zap.String("run_id", runID),
		zap.String("type", string(s.Type)),
		zap.Int("devices", s.TotalDevices()),
		zap.Duration("save_time", time.Since(started)),
	)
	out := s.Clone()
	return &out, nil
}

// pruneLocked forgets the oldest finished runs beyond rememberedRuns. Runs
// still being saved are kept.
func (a *Aggregator) pruneLocked() {
	excess := len(a.order) - rememberedRuns
	if excess <= 0 {
		return
	}
	kept := a.order[:0]
	for _, id := range a.order {
		if excess > 0 && !a.runs[id].saving {
			delete(a.runs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	clear(a.order[len(kept):])
	a.order = kept
}

// LastSaved returns the most recently saved session, if any.
func (a *Aggregator) LastSaved() (ScanSession, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastSaved == nil {
		return ScanSession{}, false
	}
	return a.lastSaved.Clone(), true
}

// ClearLastSaved drops the reference returned by LastSaved.
func (a *Aggregator) ClearLastSaved() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastSaved = nil
}
