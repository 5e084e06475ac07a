// Package bootstrap wires configuration, logging, storage and the
// domain services into a running client, and owns graceful shutdown.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"docuvoice-client-go/internal/app"
	"docuvoice-client-go/internal/backend"
	"docuvoice-client-go/internal/domain/capture"
	"docuvoice-client-go/internal/domain/conversation"
	"docuvoice-client-go/internal/domain/eventbus"
	"docuvoice-client-go/internal/domain/feedback"
	"docuvoice-client-go/internal/domain/image"
	"docuvoice-client-go/internal/domain/playback"
	"docuvoice-client-go/internal/domain/recent"
	"docuvoice-client-go/internal/domain/session"
	platformconfig "docuvoice-client-go/internal/platform/config"
	platformerrors "docuvoice-client-go/internal/platform/errors"
	platformlogging "docuvoice-client-go/internal/platform/logging"
	platformstorage "docuvoice-client-go/internal/platform/storage"
)

// feedbackFlushInterval paces retries of queued offline feedback.
const feedbackFlushInterval = time.Minute

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	options    Options
	config     *platformconfig.Config
	configPath string
	logger     *platformlogging.Logger
	store      *platformstorage.Store
	client     *backend.Client
	app        *app.App
}

// Options controls bootstrap behavior. Zero values mean the defaults
// used by the CLI binary.
type Options struct {
	ConfigPath string
	Stdin      io.Reader
	Stdout     io.Writer
}

// Run starts the client lifecycle: init steps, the interactive loop,
// the background feedback flusher, and graceful teardown on SIGINT or
// SIGTERM.
func Run(ctx context.Context, opts Options) error {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	state := &appState{options: opts}
	if err := executeInitSteps(ctx, InitGraph(), state); err != nil {
		return err
	}
	logger := state.logger
	application := state.app
	logBootstrapGraph(logger, InitGraph())

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)

	group.Go(func() error {
		repl := app.NewREPL(application, opts.Stdin, opts.Stdout)
		err := repl.Run(groupCtx)
		// A finished REPL (quit/EOF) ends the whole process.
		stop()
		return err
	})

	group.Go(func() error {
		ticker := time.NewTicker(feedbackFlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				if err := application.Feedback.Flush(groupCtx); err != nil {
					logger.WarnTag("FEEDBACK", "background flush failed: %v", err)
				}
			}
		}
	})

	<-signalCtx.Done()
	logger.InfoTag("BOOT", "shutting down")

	// Audio first: a held microphone or speaking player must not
	// outlive the process.
	application.Capture.Close()
	application.Playback.Stop()
	eventbus.Shutdown()

	err := group.Wait()
	application.Shutdown()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// InitGraph declares the ordered bootstrap steps with their
// dependencies. Order is validated at execution time.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:    "config:load-runtime",
			Title: "load configuration",
			Kind:  platformerrors.KindConfig,
			Execute: func(ctx context.Context, state *appState) error {
				loader := platformconfig.NewLoader()
				if state.options.ConfigPath != "" {
					loader = loader.WithPath(state.options.ConfigPath)
				}
				result, err := loader.Load()
				if err != nil {
					return err
				}
				state.config = result.Config
				state.configPath = result.Path
				return nil
			},
		},
		{
			ID:        "logging:init-provider",
			Title:     "initialise logging",
			DependsOn: []string{"config:load-runtime"},
			Kind:      platformerrors.KindConfig,
			Execute: func(ctx context.Context, state *appState) error {
				logger, err := platformlogging.NewLogger(&platformlogging.LogCfg{
					LogLevel: state.config.Log.Level,
					LogDir:   state.config.Log.Dir,
					LogFile:  state.config.Log.File,
				})
				if err != nil {
					return err
				}
				state.logger = logger
				if state.configPath != "" {
					logger.InfoTag("BOOT", "configuration loaded from %s", state.configPath)
				} else {
					logger.InfoTag("BOOT", "using default configuration")
				}
				return nil
			},
		},
		{
			ID:        "storage:open-store",
			Title:     "open local store",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute: func(ctx context.Context, state *appState) error {
				store, err := platformstorage.Open(state.config.Storage.Dir)
				if err != nil {
					return err
				}
				state.store = store
				return nil
			},
		},
		{
			ID:        "backend:init-client",
			Title:     "initialise backend client",
			DependsOn: []string{"config:load-runtime", "logging:init-provider"},
			Kind:      platformerrors.KindTransport,
			Execute: func(ctx context.Context, state *appState) error {
				client, err := backend.NewClient(backend.Options{
					BaseURL:        state.config.Backend.BaseURL,
					Logger:         state.logger,
					RequestTimeout: state.config.Backend.RequestTimeout,
					UploadTimeout:  state.config.Backend.UploadTimeout,
				})
				if err != nil {
					return err
				}
				state.client = client
				state.logger.InfoTag("BOOT", "backend %s", state.config.Backend.BaseURL)
				return nil
			},
		},
		{
			ID:        "services:assemble",
			Title:     "assemble services",
			DependsOn: []string{"storage:open-store", "backend:init-client"},
			Kind:      platformerrors.KindBootstrap,
			Execute: func(ctx context.Context, state *appState) error {
				cfg := state.config
				logger := state.logger
				client := state.client
				store := state.store

				uploader := session.NewUploader(session.UploaderOptions{
					API:        client,
					Normalizer: image.NewNormalizer(logger),
					Store:      store,
					Logger:     logger,
					Image: image.Options{
						MaxWidth:  cfg.Upload.MaxWidth,
						MaxHeight: cfg.Upload.MaxHeight,
						Quality:   cfg.Upload.JPEGQuality,
					},
					Cooldown: cfg.Upload.GuardCooldown,
				})

				state.app = &app.App{
					Logger:       logger,
					Store:        store,
					Client:       client,
					Uploader:     uploader,
					Conversation: conversation.New(client, session.NewRecoverer(client, logger), logger),
					Playback: playback.NewController(playback.ControllerOptions{
						Output:           playback.NewFFPlayOutput(cfg.Playback.Player),
						TTS:              client,
						Store:            store,
						Logger:           logger,
						AutoPlayCooldown: cfg.Playback.AutoPlayCooldown,
					}),
					Capture: capture.NewController(capture.ControllerOptions{
						Source: capture.NewFFmpegSource(
							cfg.Capture.FFmpeg,
							cfg.Capture.InputFormat,
							cfg.Capture.InputDevice,
							cfg.Capture.SampleRate,
							cfg.Capture.Channels,
						),
						STT:           client,
						Logger:        logger,
						SampleRate:    cfg.Capture.SampleRate,
						Channels:      cfg.Capture.Channels,
						MaxDuration:   cfg.Capture.MaxDuration,
						LevelInterval: cfg.Capture.LevelInterval,
					}),
					Feedback: feedback.NewService(client, store, logger),
					Recent:   recent.NewService(client, logger),
				}
				return nil
			},
		},
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "execute init steps", "nil bootstrap state")
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(platformerrors.KindBootstrap, step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep))
			}
		}
		if step.Execute == nil {
			return platformerrors.New(platformerrors.KindBootstrap, step.ID, "missing execute function")
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}
			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func logBootstrapGraph(logger *platformlogging.Logger, steps []initStep) {
	logger.InfoTag("BOOT", "init dependency overview:")
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag("BOOT", "  %s (%s)", step.ID, step.Title)
			continue
		}
		logger.InfoTag("BOOT", "  %s (%s) <- %v", step.ID, step.Title, step.DependsOn)
	}
}

// Doctor prints a host readiness report: system load plus the external
// binaries the capture and playback paths shell out to.
func Doctor(w io.Writer, cfg *platformconfig.Config) {
	fmt.Fprintln(w, "docuvoice doctor")

	if info, err := host.Info(); err == nil {
		fmt.Fprintf(w, "  host: %s %s (%s), up %s\n",
			info.Platform, info.PlatformVersion, info.KernelArch,
			(time.Duration(info.Uptime) * time.Second).Truncate(time.Second))
	}
	if v, err := mem.VirtualMemory(); err == nil {
		fmt.Fprintf(w, "  memory: %.1f%% used of %d MiB\n", v.UsedPercent, v.Total/1024/1024)
	}
	if pct, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(pct) > 0 {
		fmt.Fprintf(w, "  cpu: %.1f%%\n", pct[0])
	}

	for _, binary := range []string{cfg.Capture.FFmpeg, cfg.Playback.Player} {
		if path, err := exec.LookPath(binary); err == nil {
			fmt.Fprintf(w, "  %s: %s\n", binary, path)
		} else {
			fmt.Fprintf(w, "  %s: NOT FOUND\n", binary)
		}
	}
	fmt.Fprintf(w, "  backend: %s\n", cfg.Backend.BaseURL)
}
