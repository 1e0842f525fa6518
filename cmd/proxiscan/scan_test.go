package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/proxiscan/internal/clock"
	"github.com/muurk/proxiscan/internal/config"
	"github.com/muurk/proxiscan/internal/network"
	"github.com/muurk/proxiscan/internal/radio"
	"github.com/muurk/proxiscan/internal/scanerr"
	"github.com/muurk/proxiscan/internal/session"
	"github.com/muurk/proxiscan/internal/store"
)

// idleNetworkSource never reports anything.
type idleNetworkSource struct{}

func (idleNetworkSource) Attach(network.Listener) {}
func (idleNetworkSource) BeginCollection(bool)    {}
func (idleNetworkSource) EndCollection()          {}

func TestScan_CombinedStartFailureReleasesFinalizer(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC))
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "sessions.yaml"))
	require.NoError(t, err)
	catalog := session.NewCatalog(st)
	t.Cleanup(func() { _ = catalog.Close() })

	s := &scan{
		mode:    session.TypeCombined,
		radio:   radio.NewEngine(radio.NewReplaySource(c, &radio.Script{}), radio.Options{Clock: c}),
		network: network.NewEngine(idleNetworkSource{}, network.Options{Clock: c}),
		results: make(chan session.Result, 1),
	}
	finished := make(chan struct{})
	s.wire(t.Context(), finished, session.NewAggregator(catalog))

	// A network run already in progress makes the combined start fail after
	// the radio has started.
	require.NoError(t, s.network.StartScan(time.Minute))
	err = s.start(&config.Config{})
	require.ErrorIs(t, err, scanerr.ErrAlreadyRunning)
	assert.False(t, s.radio.IsScanning())
	assert.True(t, s.network.IsScanning())

	close(finished)
	waited := make(chan struct{})
	go func() {
		s.finalizer.Wait()
		close(waited)
	}()
	require.Eventually(t, func() bool {
		select {
		case <-waited:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	assert.Empty(t, s.results)
	assert.Zero(t, catalog.Count())
}
