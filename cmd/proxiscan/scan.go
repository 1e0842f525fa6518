package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/proxiscan/internal/clock"
	"github.com/muurk/proxiscan/internal/config"
	"github.com/muurk/proxiscan/internal/feed"
	"github.com/muurk/proxiscan/internal/logging"
	"github.com/muurk/proxiscan/internal/network"
	"github.com/muurk/proxiscan/internal/radio"
	"github.com/muurk/proxiscan/internal/session"
	"github.com/muurk/proxiscan/internal/tui"
)

// abortWait bounds how long an aborted interactive scan waits for its save.
const abortWait = 2 * time.Second

// scanOptions are the flags shared by the scan subcommands.
type scanOptions struct {
	timeout         time.Duration
	script          string
	allowDuplicates bool
	method          string
	subnet          string
	services        []string
	plain           bool
	serveAddr       string
}

func newScanCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for nearby devices",
		Long: `Scan the radio channel, the network channel, or both.

A scan stops when its timeout elapses or when you press q. Every scan that
finds at least one device is saved as a session.`,
	}
	cmd.AddCommand(
		newScanModeCmd(g, session.TypeRadio),
		newScanModeCmd(g, session.TypeNetwork),
		newScanModeCmd(g, session.TypeCombined),
	)
	return cmd
}

func newScanModeCmd(g *globalOptions, mode session.ScanType) *cobra.Command {
	so := &scanOptions{}

	var short, example string
	switch mode {
	case session.TypeRadio:
		short = "Scan for radio peripherals"
		example = `  # Replay a recorded capture for 10 seconds
  proxiscan scan radio --script capture.yaml --timeout 10s`
	case session.TypeNetwork:
		short = "Scan the local network"
		example = `  # Browse mDNS services (default)
  proxiscan scan network

  # Sweep a subnet with TCP connects
  proxiscan scan network --method sweep --subnet 192.168.1.0/24

  # Serve the live feed while scanning
  proxiscan scan network --serve 127.0.0.1:8787`
	case session.TypeCombined:
		short = "Scan radio and network together and save one session"
		example = `  proxiscan scan combined --script capture.yaml --timeout 30s`
	}

	cmd := &cobra.Command{
		Use:     string(mode),
		Short:   short,
		Example: example,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, g, so, mode)
		},
	}

	f := cmd.Flags()
	f.DurationVar(&so.timeout, "timeout", 0, "Scan duration (default from config)")
	f.BoolVar(&so.plain, "plain", false, "Print plain event lines instead of the live view")
	f.StringVar(&so.serveAddr, "serve", "", "Also serve the live feed on this address while scanning")
	if mode != session.TypeNetwork {
		f.StringVar(&so.script, "script", "", "Radio replay script (YAML)")
		f.BoolVar(&so.allowDuplicates, "allow-duplicates", false, "Report every advertisement, not only the first per device")
	}
	if mode != session.TypeRadio {
		f.StringVar(&so.method, "method", "", "Network discovery method (mdns, sweep)")
		f.StringVar(&so.subnet, "subnet", "", "Subnet to sweep, e.g. 192.168.1.0/24 (default: autodetect)")
		f.StringSliceVar(&so.services, "services", nil, "mDNS service types to browse")
	}
	return cmd
}

// apply overlays the flags the user set onto cfg.
func (so *scanOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("timeout") {
		cfg.Radio.Timeout = so.timeout
		cfg.Network.Timeout = so.timeout
	}
	if f.Changed("script") {
		cfg.Radio.Script = so.script
	}
	if f.Changed("allow-duplicates") {
		cfg.Radio.AllowDuplicates = so.allowDuplicates
	}
	if f.Changed("method") {
		cfg.Network.Method = strings.ToLower(so.method)
	}
	if f.Changed("subnet") {
		cfg.Network.Subnet = so.subnet
	}
	if f.Changed("services") {
		cfg.Network.Services = so.services
	}
	return cfg.Validate()
}

// scan is one CLI scan over one or both engines. results receives exactly
// one value once the scan has been finalized.
type scan struct {
	mode    session.ScanType
	radio   *radio.Engine
	network *network.Engine
	results chan session.Result

	finalizer sync.WaitGroup
}

func runScan(cmd *cobra.Command, g *globalOptions, so *scanOptions, mode session.ScanType) error {
	cfg := *g.cfg
	if err := so.apply(cmd, &cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, _, err := openCatalog(ctx, &cfg)
	if err != nil {
		return err
	}
	defer catalog.Close()

	s := &scan{mode: mode, results: make(chan session.Result, 1)}
	c := clock.System()
	if mode != session.TypeNetwork {
		if s.radio, err = newRadioEngine(&cfg, c); err != nil {
			return err
		}
	}
	if mode != session.TypeRadio {
		s.network = newNetworkEngine(&cfg, c)
	}

	// Saves outlive an interrupt so the stopped run still lands in history.
	finished := make(chan struct{})
	defer s.finalizer.Wait()
	defer close(finished)
	s.wire(context.WithoutCancel(ctx), finished, session.NewAggregator(catalog))

	if so.serveAddr != "" {
		srv := feed.New(feed.Options{
			Addr:    so.serveAddr,
			Catalog: catalog,
			Radio:   s.radio,
			Network: s.network,
			Clock:   c,
		})
		serveCtx, cancelServe := context.WithCancel(ctx)
		defer cancelServe()
		defer srv.Close()
		go func() {
			if err := srv.Start(serveCtx); err != nil {
				logging.Error("Live feed failed", zap.Error(err))
			}
		}()
	}

	logging.LogScanEvent(string(mode), "scan_requested",
		zap.Duration("radio_timeout", cfg.Radio.Timeout),
		zap.Duration("network_timeout", cfg.Network.Timeout))

	if so.plain || !tui.IsTerminal() {
		return s.runPlain(ctx, cmd.OutOrStdout(), &cfg)
	}
	return s.runInteractive(ctx, cmd.OutOrStdout(), &cfg)
}

// wire arranges for the scan to be finalized once its engines stop. A
// combined scan waits for both channels and saves one session, or gives up
// when finished is closed.
func (s *scan) wire(ctx context.Context, finished <-chan struct{}, agg *session.Aggregator) {
	deliver := func(res session.Result) {
		select {
		case s.results <- res:
		default:
		}
	}

	if s.radio != nil && s.network != nil {
		radioDone := make(chan session.Capture, 1)
		networkDone := make(chan session.Capture, 1)
		s.radio.OnStopped(func(cp session.Capture) {
			select {
			case radioDone <- cp:
			default:
			}
		})
		s.network.OnStopped(func(cp session.Capture) {
			select {
			case networkDone <- cp:
			default:
			}
		})
		s.finalizer.Add(1)
		go func() {
			defer s.finalizer.Done()
			var rc, nc session.Capture
			select {
			case rc = <-radioDone:
			case <-finished:
				return
			}
			select {
			case nc = <-networkDone:
			case <-finished:
				return
			}
			sess, err := agg.FinalizeCombined(ctx, rc, nc)
			deliver(session.Result{RunID: rc.RunID + "+" + nc.RunID, Session: sess, Err: err})
		}()
		return
	}

	rec := session.NewRecorder(ctx, agg)
	if s.radio != nil {
		rec.Watch(s.radio, deliver)
	} else {
		rec.Watch(s.network, deliver)
	}
}

func (s *scan) start(cfg *config.Config) error {
	if s.radio != nil {
		if err := s.radio.StartScanning(cfg.Radio.Timeout); err != nil {
			return err
		}
	}
	if s.network != nil {
		if err := s.network.StartScan(cfg.Network.Timeout); err != nil {
			if s.radio != nil {
				s.radio.StopScanning()
			}
			return err
		}
	}
	return nil
}

// stop ends every running channel. Each stopped run is finalized.
func (s *scan) stop() {
	if s.radio != nil {
		s.radio.StopScanning()
	}
	if s.network != nil {
		s.network.StopScan()
	}
}

// subscribe forwards engine events to the given handlers.
func (s *scan) subscribe(onRadio func(radio.Event), onNetwork func(network.Event)) (unsubscribe func()) {
	var unsubs []func()
	if s.radio != nil {
		unsubs = append(unsubs, s.radio.Subscribe(onRadio))
	}
	if s.network != nil {
		unsubs = append(unsubs, s.network.Subscribe(onNetwork))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (s *scan) runPlain(ctx context.Context, out io.Writer, cfg *config.Config) error {
	rep := tui.NewReporter(out)
	unsubscribe := s.subscribe(rep.RadioEvent, rep.NetworkEvent)
	defer unsubscribe()

	if err := s.start(cfg); err != nil {
		return err
	}

	var res session.Result
	select {
	case res = <-s.results:
	case <-ctx.Done():
		s.stop()
		res = <-s.results
	}
	rep.Finished(res.Session, res.Err)
	return res.Err
}

func (s *scan) runInteractive(ctx context.Context, out io.Writer, cfg *config.Config) error {
	scanCfg := tui.ScanConfig{
		Title:   string(s.mode) + " scan",
		Command: "proxiscan scan " + string(s.mode),
		Params:  s.params(cfg),
		Stop:    s.stop,
	}
	if s.radio != nil {
		scanCfg.Radio = s.radio
	}
	if s.network != nil {
		scanCfg.Network = s.network
	}
	p := tea.NewProgram(tui.NewScanModel(scanCfg))

	// Engine callbacks must not block on the program, which is not yet
	// running when the first events fire. The view reads device lists from
	// the engines, so a dropped event only loses a note.
	events := make(chan tea.Msg, 256)
	post := func(msg tea.Msg) {
		select {
		case events <- msg:
		default:
		}
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case msg := <-events:
				p.Send(msg)
			case <-done:
				return
			}
		}
	}()

	unsubscribe := s.subscribe(
		func(ev radio.Event) { post(tui.RadioEventMsg{Event: ev}) },
		func(ev network.Event) { post(tui.NetworkEventMsg{Event: ev}) },
	)
	defer unsubscribe()

	if err := s.start(cfg); err != nil {
		return err
	}

	final := make(chan session.Result, 1)
	go func() {
		select {
		case res := <-s.results:
			final <- res
			p.Send(tui.FinishedMsg{Session: res.Session, Err: res.Err})
		case <-done:
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			s.stop()
		case <-done:
		}
	}()

	m, err := p.Run()
	if err != nil {
		s.stop()
		return fmt.Errorf("scan view failed: %w", err)
	}
	model, ok := m.(tui.ScanModel)
	if !ok || !model.Aborted() {
		_, err := model.Result()
		return err
	}

	s.stop()
	select {
	case res := <-final:
		tui.NewReporter(out).Finished(res.Session, res.Err)
		return res.Err
	case <-time.After(abortWait):
		fmt.Fprintln(out, "Scan aborted before the session was saved.")
		return nil
	}
}

func (s *scan) params(cfg *config.Config) map[string]string {
	params := map[string]string{}
	if s.radio != nil {
		params["Radio timeout"] = cfg.Radio.Timeout.String()
		params["Script"] = cfg.Radio.Script
	}
	if s.network != nil {
		params["Network timeout"] = cfg.Network.Timeout.String()
		params["Method"] = cfg.Network.Method
		if cfg.Network.Method == config.MethodSweep {
			subnet := cfg.Network.Subnet
			if subnet == "" {
				subnet = network.DetectSubnet().String()
			}
			params["Subnet"] = subnet
		} else {
			params["Services"] = strings.Join(cfg.Network.Services, ", ")
		}
	}
	params["Store"] = cfg.Store.Backend
	return params
}
