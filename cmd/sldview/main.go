package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/smileynet/sldview"
	"github.com/smileynet/sldview/internal/config"
	"github.com/smileynet/sldview/internal/diagram"
	"github.com/smileynet/sldview/internal/display"
	"github.com/smileynet/sldview/internal/reloader"
	"github.com/smileynet/sldview/internal/source"
	"github.com/smileynet/sldview/internal/store"
	"github.com/smileynet/sldview/internal/viewer"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Globals are flags shared by every command.
type Globals struct {
	Debug  bool   `help:"Log debug records to stderr."`
	Source string `help:"Diagram source (http or dir). Overrides source.kind." placeholder:"KIND"`
	URL    string `help:"Network service API root. Overrides source.url." placeholder:"URL"`
	Dir    string `help:"Diagram directory for the dir source. Overrides source.dir." placeholder:"DIR"`
}

// CLI is the top-level command structure for sldview.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version." short:"V"`
	View    ViewCmd          `cmd:"" help:"Browse diagrams in an interactive TUI."`
	Fetch   FetchCmd         `cmd:"" help:"Load diagrams and print a summary line for each."`
	Watch   WatchCmd         `cmd:"" help:"Follow one diagram, printing every change."`
	Export  ExportCmd        `cmd:"" help:"Load a diagram and write it as SVG and JSON files."`
}

// loadConfig loads layered config from user and project paths with env
// overrides, then applies global flag overrides and validates the result.
func loadConfig(g *Globals) (*config.Config, error) {
	cfg, err := config.LoadLayered(
		os.ExpandEnv("$HOME/.config/sldview/config.yaml"),
		".sldview/config.yaml",
	)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if g.Source != "" {
		cfg.Source.Kind = g.Source
	}
	if g.URL != "" {
		cfg.Source.URL = g.URL
	}
	if g.Dir != "" {
		cfg.Source.Dir = g.Dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger returns a text logger on w. Only warnings are kept unless debug is set.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newRuntime builds the configured diagram source through the registry.
// The dir source reads the configured directory, falling back to the
// embedded sample diagrams.
func newRuntime(cfg *config.Config) (diagram.Runtime, error) {
	reg := source.NewRegistry()
	source.RegisterBuiltins(reg, source.Settings{
		URL:       cfg.Source.URL,
		RateLimit: cfg.Source.RateLimit,
		Dir:       sldview.OverlayFS(cfg.Source.Dir, sldview.Samples),
	})
	return reg.NewRuntime(cfg.Source.Kind)
}

// machineOptions translates config into reloader options. rt may be nil.
func machineOptions(cfg *config.Config, rt diagram.Runtime, logger *slog.Logger) []reloader.Option {
	opts := []reloader.Option{
		reloader.WithDwell(cfg.Reloader.Dwell),
		reloader.WithCacheCapacity(cfg.Reloader.CacheSize),
		reloader.WithLogger(logger),
	}
	if rt != nil {
		opts = append(opts, reloader.WithRuntime(rt))
	}
	return opts
}

// newLoader returns the loader used by every command.
func newLoader(cfg *config.Config) diagram.Loader {
	return diagram.RuntimeLoader{Timeout: cfg.Source.Timeout}
}

// startReloader runs r until the returned stop func is called or ctx ends.
// stop waits for the event loop to exit.
func startReloader(ctx context.Context, r *reloader.Reloader) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// setup loads config and builds the logger and runtime shared by the
// non-interactive commands.
func setup(g *Globals, name string) (*config.Config, *slog.Logger, diagram.Runtime, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	logger := newLogger(os.Stderr, g.Debug)
	rt, err := newRuntime(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	return cfg, logger, rt, nil
}

// --- Fetch command ---

// FetchCmd loads each id in turn through one reloader.
type FetchCmd struct {
	IDs []string `arg:"" name:"id" help:"Diagram ids to load."`
}

// Run executes the fetch command.
func (c *FetchCmd) Run(g *Globals) error {
	cfg, logger, rt, err := setup(g, "fetch")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := reloader.New(newLoader(cfg), machineOptions(cfg, rt, logger)...)
	return c.run(ctx, os.Stdout, r)
}

// run loads every id and prints one line each, enabling testable wiring.
// Ids that fail to load are reported and counted; the first hard error stops the run.
func (c *FetchCmd) run(ctx context.Context, w io.Writer, r *reloader.Reloader) error {
	stop := startReloader(ctx, r)
	defer stop()

	var failed []string
	for _, id := range c.IDs {
		if id == "" {
			return errors.New("fetch: empty diagram id")
		}
		snap, cached, err := loadOne(ctx, r, id)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		if snap.IsError() {
			_, _ = fmt.Fprintf(w, "%s error: %s\n", id, snap.Err)
			failed = append(failed, id)
			continue
		}
		_, _ = fmt.Fprintln(w, fetchLine(snap, cached))
	}

	if len(failed) > 0 {
		return &LoadFailedError{IDs: failed, Total: len(c.IDs)}
	}
	return nil
}

// loadOne selects id and waits for the reloader to settle. cached reports
// whether id was served from the cache.
func loadOne(ctx context.Context, r *reloader.Reloader, id string) (snap reloader.Snapshot, cached bool, err error) {
	cached = r.Snapshot().IsInCache(id)
	if err := r.LoadDiagram(id); err != nil {
		return snap, false, err
	}
	snap, err = r.Await(ctx)
	return snap, cached, err
}

// fetchLine renders a loaded snapshot for the fetch command.
func fetchLine(s reloader.Snapshot, cached bool) string {
	origin := "fetched"
	if cached {
		origin = "cached"
	}
	d := s.Diagram
	if d == nil {
		return fmt.Sprintf("%s %s", s.CurrentID, s.State)
	}
	return fmt.Sprintf("%s %s nodes=%d wires=%d feeders=%d switches=%d open=%d bytes=%d",
		s.CurrentID, origin,
		len(d.Metadata.Nodes), len(d.Metadata.Wires), len(d.Metadata.FeederInfos),
		len(d.Metadata.Switches()), d.Metadata.OpenSwitches(), len(d.SVG))
}

// LoadFailedError reports ids that ended in the error state.
type LoadFailedError struct {
	IDs   []string
	Total int
}

func (e *LoadFailedError) Error() string {
	return fmt.Sprintf("%d of %d diagrams failed to load: %v", len(e.IDs), e.Total, e.IDs)
}

// --- Export command ---

// ExportCmd loads one diagram and writes it where the dir source can read it.
type ExportCmd struct {
	ID  string `arg:"" help:"Diagram id to export."`
	Out string `help:"Output directory. Overrides export.dir." short:"o" placeholder:"DIR"`
}

// Run executes the export command.
func (c *ExportCmd) Run(g *Globals) error {
	cfg, logger, rt, err := setup(g, "export")
	if err != nil {
		return err
	}
	dir := cfg.Export.Dir
	if c.Out != "" {
		dir = c.Out
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := reloader.New(newLoader(cfg), machineOptions(cfg, rt, logger)...)
	return c.run(ctx, os.Stdout, r, store.NewFileStore(dir))
}

// run loads the diagram and saves it, enabling testable wiring.
func (c *ExportCmd) run(ctx context.Context, w io.Writer, r *reloader.Reloader, st *store.FileStore) error {
	stop := startReloader(ctx, r)
	defer stop()

	snap, _, err := loadOne(ctx, r, c.ID)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if !snap.IsLoaded() || snap.Diagram == nil {
		_, _ = fmt.Fprintf(w, "%s error: %s\n", c.ID, snap.Err)
		return &LoadFailedError{IDs: []string{c.ID}, Total: 1}
	}

	svgPath, metaPath, err := st.Save(*snap.Diagram)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Wrote %s\n", svgPath)
	_, _ = fmt.Fprintf(w, "Wrote %s\n", metaPath)
	return nil
}

// --- Watch command ---

// WatchCmd follows one diagram and prints every state change.
type WatchCmd struct {
	ID     string        `arg:"" help:"Diagram id to follow."`
	Dwell  time.Duration `help:"Auto-refresh period. Overrides reloader.dwell."`
	NoAuto bool          `help:"Do not enable auto-refresh." default:"false"`
	NoTUI  bool          `help:"Force plain text output even if stdout is a TTY." default:"false"`
}

// Run builds real dependencies and follows the diagram until interrupted.
func (c *WatchCmd) Run(g *Globals) error {
	cfg, logger, rt, err := setup(g, "watch")
	if err != nil {
		return err
	}
	if c.Dwell > 0 {
		cfg.Reloader.Dwell = c.Dwell
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes := make(chan string, 8)
	if cfg.Source.Kind == "dir" {
		if w, err := source.NewWatcher(cfg.Source.Dir, forwardChange(changes), source.WithWatchLogger(logger)); err != nil {
			logger.Warn("file watch disabled", "dir", cfg.Source.Dir, "err", err)
		} else {
			defer w.Close()
			go w.Run(ctx)
		}
	}

	bridge := display.NewBridge()
	disp := display.New(display.Options{
		Writer:     os.Stdout,
		ForcePlain: c.NoTUI,
		Title:      c.ID,
		CancelFunc: cancel,
	})

	r := reloader.New(newLoader(cfg), machineOptions(cfg, rt, logger)...)
	return c.run(ctx, r, disp, bridge, changes)
}

// forwardChange returns a watcher handler that queues ids without blocking.
func forwardChange(changes chan<- string) source.ChangeHandler {
	return func(id string) {
		select {
		case changes <- id:
		default:
		}
	}
}

// run drives the display while following the diagram, enabling testable wiring.
func (c *WatchCmd) run(ctx context.Context, r *reloader.Reloader, disp display.Display, bridge *display.Bridge, changes <-chan string) error {
	stop := startReloader(ctx, r)
	defer stop()

	displayDone := make(chan error, 1)
	go func() {
		displayDone <- disp.Run(context.Background(), bridge.Events())
	}()

	err := c.follow(ctx, r, bridge, changes)
	if err != nil {
		bridge.Error(err)
	} else {
		bridge.Done()
	}

	// Wait for the display to release the terminal.
	<-displayDone
	return err
}

// follow forwards snapshots to the bridge until ctx is done. Auto-refresh is
// enabled the first time the diagram loads; a change on disk refreshes a
// loaded diagram or retries a failed one.
func (c *WatchCmd) follow(ctx context.Context, r *reloader.Reloader, bridge *display.Bridge, changes <-chan string) error {
	if c.ID == "" {
		return errors.New("watch: empty diagram id")
	}
	if err := r.LoadDiagram(c.ID); err != nil {
		return stopped(ctx, err)
	}

	armed := c.NoAuto
	for {
		select {
		case <-ctx.Done():
			return nil

		case s := <-r.Updates():
			bridge.Send(s)
			if !armed && s.IsLoaded() && s.CurrentID == c.ID {
				armed = true
				if err := r.EnableAutoRefresh(); err != nil {
					return stopped(ctx, err)
				}
			}

		case id, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if id != c.ID {
				continue
			}
			bridge.Notice("%s changed on disk", id)
			var err error
			if r.Snapshot().IsError() {
				err = r.Retry()
			} else {
				err = r.ManualRefresh()
			}
			if err != nil {
				return stopped(ctx, err)
			}
		}
	}
}

// stopped treats a reloader shut down by ctx as a normal exit.
func stopped(ctx context.Context, err error) error {
	if errors.Is(err, reloader.ErrStopped) && ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("watch: %w", err)
}

// --- View command ---

// ViewCmd opens the interactive viewer.
type ViewCmd struct {
	ID    string        `arg:"" optional:"" help:"Diagram id to open at start."`
	Dwell time.Duration `help:"Auto-refresh period. Overrides reloader.dwell."`
	Auto  bool          `help:"Enable auto-refresh once the diagram loads." default:"false"`
}

// teaRunner abstracts Bubble Tea program execution for testing.
type teaRunner interface {
	Run() (tea.Model, error)
}

// Run builds real dependencies and launches the viewer TUI. A source that
// cannot be built leaves the viewer without a runtime instead of failing.
func (c *ViewCmd) Run(g *Globals) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("view: requires a terminal (TTY)")
	}

	cfg, err := loadConfig(g)
	if err != nil {
		return fmt.Errorf("view: %w", err)
	}
	if c.Dwell > 0 {
		cfg.Reloader.Dwell = c.Dwell
	}

	// The alt screen owns stderr output, so logs are kept only with --debug.
	logw := io.Discard
	if g.Debug {
		logw = os.Stderr
	}
	logger := newLogger(logw, g.Debug)

	rt, err := newRuntime(cfg)
	if err != nil {
		logger.Warn("starting without a runtime", "source", cfg.Source.Kind, "err", err)
		rt = nil
	}

	machine := reloader.NewMachine(newLoader(cfg), machineOptions(cfg, rt, logger)...)
	opts := []viewer.Option{
		viewer.WithSourceName(cfg.Source.Kind),
		viewer.WithAutoRefresh(c.Auto || cfg.Reloader.AutoRefresh),
	}
	if c.ID != "" {
		opts = append(opts, viewer.WithInitialID(c.ID))
	}

	prog := tea.NewProgram(viewer.NewModel(machine, opts...), tea.WithAltScreen())

	if cfg.Source.Kind == "dir" {
		w, err := source.NewWatcher(cfg.Source.Dir, func(string) {
			prog.Send(reloader.ManualRefresh{})
		}, source.WithWatchLogger(logger))
		if err != nil {
			logger.Warn("file watch disabled", "dir", cfg.Source.Dir, "err", err)
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			defer w.Close()
			go w.Run(ctx)
		}
	}

	return c.run(true, prog)
}

// run executes the tea program, enabling testable wiring.
func (c *ViewCmd) run(isTTY bool, prog teaRunner) error {
	if !isTTY {
		return fmt.Errorf("view: requires a terminal (TTY)")
	}
	_, err := prog.Run()
	return err
}

const (
	exitSuccess = 0
	exitLoad    = 1
	exitSetup   = 2
)

// exitCode maps an error to the appropriate exit code.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var lf *LoadFailedError
	if errors.As(err, &lf) {
		return exitLoad
	}
	return exitSetup
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("sldview"),
		kong.Description("Load, cache and auto-refresh single-line diagrams."),
		kong.Vars{"version": version + " " + commit + " " + date},
	)
	err := ctx.Run(&cli.Globals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(exitCode(err))
	}
}
