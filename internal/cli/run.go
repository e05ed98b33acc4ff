package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/tripwire/internal/actions"
	"github.com/roach88/tripwire/internal/appstate"
	"github.com/roach88/tripwire/internal/compiler"
	"github.com/roach88/tripwire/internal/engine"
	"github.com/roach88/tripwire/internal/schedule"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Inbox      string
	NoStdin    bool
	Background bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine as an app session",
		Long: `Run the engine as one app session: persisted state is recovered and
app_init and asap are delivered on start.

Events are read from stdin, one JSON object per line:

  {"type": "screen_view", "payload": "cart"}
  {"type": "custom_event_count", "payload": {"name": "add_to_cart"}}
  {"type": "custom_event_value", "value": 25, "payload": {"currency": "USD"}}

Lifecycle, screen and region events also update the app context used by
delay gates. The session ends at end of input or on SIGINT/SIGTERM. With
--inbox, schedule documents dropped into the directory are stored as they
arrive.

Example:
  tripwire run < events.jsonl
  tripwire run --inbox ./inbox --no-stdin`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Inbox, "inbox", "", "directory watched for schedule documents (overrides config)")
	cmd.Flags().BoolVar(&opts.NoStdin, "no-stdin", false, "do not read events from stdin; run until signalled")
	cmd.Flags().BoolVar(&opts.Background, "background", false, "start with the app in the background")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, err := opts.Config()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to load config", err)
	}
	inboxDir := cfg.Inbox
	if opts.Inbox != "" {
		inboxDir = opts.Inbox
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	// The engine outlives the inputs so that shutdown can record the
	// completions of actions still running.
	engineCtx, stopEngine := context.WithCancel(context.WithoutCancel(ctx))
	defer stopEngine()

	loop := appstate.NewLoop(engineCtx)
	defer loop.Close()
	tracker := appstate.NewTracker(appstate.Snapshot{Foreground: !opts.Background})

	s, err := openSession(engineCtx, cfg,
		engine.WithDispatcher(loop),
		engine.WithEnvironment(tracker),
	)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}

	var inboxDone chan error
	if inboxDir != "" {
		inbox, err := NewInbox(inboxDir, DefaultInboxSettle, inboxSubmitter(s.engine))
		if err != nil {
			s.Close()
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to watch inbox", err)
		}
		inboxDone = make(chan error, 1)
		go func() { inboxDone <- inbox.Run(ctx) }()
		formatter.Textf("Watching %s for schedule documents.", inboxDir)
	}

	slog.Info("session started", "db", cfg.Database, "inbox", inboxDir)
	formatter.Textf("Engine started.")

	var readErr error
	if opts.NoStdin {
		<-ctx.Done()
	} else {
		formatter.Textf("Reading events from stdin. Press Ctrl-D to end the session.")
		readErr = readEvents(ctx, cmd.InOrStdin(), s.engine, loop, tracker, formatter)
	}

	cancel()
	if inboxDone != nil {
		if err := <-inboxDone; err != nil {
			slog.Warn("inbox stopped", "error", err)
		}
	}
	closeErr := s.Close()
	slog.Info("session stopped")

	if readErr != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArgs, "event stream error", readErr)
	}
	if closeErr != nil {
		return WrapExitError(ExitFailure, "engine error", closeErr)
	}
	return nil
}

// readEvents delivers one event per input line until the input ends or
// ctx is cancelled. Malformed lines are reported and skipped.
func readEvents(ctx context.Context, r io.Reader, eng *engine.Engine, loop *appstate.Loop, tracker *appstate.Tracker, formatter *OutputFormatter) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	lineNo := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			lineNo++
			if len(line) == 0 {
				continue
			}
			var msg EventMessage
			if err := json.Unmarshal([]byte(line), &msg); err != nil {
				slog.Warn("malformed event skipped", "line", lineNo, "error", err)
				continue
			}
			ev, err := msg.parse()
			if err != nil {
				slog.Warn("invalid event skipped", "line", lineNo, "error", err)
				continue
			}
			deliver(ctx, eng, loop, tracker, ev)
			formatter.VerboseLog("event %s delivered (line %d)", ev.typ, lineNo)
		}
	}
}

// deliver updates the app context on the loop that owns it, then hands the
// event to the engine. Waiting on the engine keeps events in input order
// relative to the context updates.
func deliver(ctx context.Context, eng *engine.Engine, loop *appstate.Loop, tracker *appstate.Tracker, ev event) {
	loop.Do(func() { tracker.Apply(ev.typ, ev.payload) })
	if _, err := eng.OnEvent(ev.typ, ev.payload, ev.value).Wait(ctx); err != nil {
		slog.Debug("event not processed", "type", string(ev.typ), "error", err)
	}
}

// inboxSubmitter stores inbox documents as one batch each.
func inboxSubmitter(eng *engine.Engine) InboxSubmitFunc {
	registry := actions.DefaultRegistry()
	return func(ctx context.Context, path string, entries []compiler.Entry) error {
		infos := make([]schedule.Info, len(entries))
		for i, e := range entries {
			if err := registry.Check(e.Info.Data); err != nil {
				return fmt.Errorf("schedule %q: %w", e.Name, err)
			}
			infos[i] = e.Info
		}
		f, err := eng.ScheduleAll(infos)
		if err != nil {
			return err
		}
		created, err := f.Wait(ctx)
		if err != nil {
			return err
		}
		if created == nil {
			return fmt.Errorf("%s: schedules rejected", path)
		}
		return nil
	}
}
