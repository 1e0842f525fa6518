package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/muurk/proxiscan/internal/clock"
	"github.com/muurk/proxiscan/internal/config"
	"github.com/muurk/proxiscan/internal/logging"
	"github.com/muurk/proxiscan/internal/network"
	"github.com/muurk/proxiscan/internal/radio"
	"github.com/muurk/proxiscan/internal/session"
	"github.com/muurk/proxiscan/internal/store"
)

// errNoRadioSource is returned when a radio scan has no source to read from.
var errNoRadioSource = errors.New("no radio source configured: pass --script or set radio.script in the config file")

// openStore opens the configured session store.
func openStore(cfg *config.Config) (session.Store, error) {
	path, err := cfg.StorePath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store path: %w", err)
	}
	st, err := store.Open(cfg.Store.Backend, path)
	if err != nil {
		return nil, err
	}
	logging.Debug("Opened session store",
		zap.String("backend", cfg.Store.Backend),
		zap.String("path", path))
	return st, nil
}

// openCatalog opens the store and loads every session into a catalog. The
// caller closes the catalog, which closes the store.
func openCatalog(ctx context.Context, cfg *config.Config) (*session.Catalog, session.Store, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	catalog := session.NewCatalog(st)
	if err := catalog.Load(ctx); err != nil {
		catalog.Close()
		return nil, nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	return catalog, st, nil
}

// newRadioEngine builds the radio engine over a replay script.
func newRadioEngine(cfg *config.Config, c clock.Clock) (*radio.Engine, error) {
	if cfg.Radio.Script == "" {
		return nil, errNoRadioSource
	}
	script, err := radio.LoadScript(cfg.Radio.Script)
	if err != nil {
		return nil, err
	}
	src := radio.NewReplaySource(c, script)
	return radio.NewEngine(src, radio.Options{
		Clock:           c,
		TickInterval:    cfg.TickInterval,
		AllowDuplicates: cfg.Radio.AllowDuplicates,
	}), nil
}

// newNetworkEngine builds the network engine over the configured discovery
// method.
func newNetworkEngine(cfg *config.Config, c clock.Clock) *network.Engine {
	var src network.Source
	switch cfg.Network.Method {
	case config.MethodSweep:
		s := network.NewSweepSource(cfg.Network.Subnet)
		if len(cfg.Network.Ports) > 0 {
			s.Ports = cfg.Network.Ports
		}
		if cfg.Network.ProbeTimeout > 0 {
			s.ProbeTimeout = cfg.Network.ProbeTimeout
		}
		if cfg.Network.Concurrency > 0 {
			s.Concurrency = cfg.Network.Concurrency
		}
		src = s
	default:
		s := network.NewMDNSSource(cfg.Network.Services)
		s.Timeout = cfg.Network.Timeout
		src = s
	}
	return network.NewEngine(src, network.Options{
		Clock:        c,
		TickInterval: cfg.TickInterval,
	})
}
