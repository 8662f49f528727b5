// Command upscale runs the upload, configure, process and export flow from a
// terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/schollz/progressbar/v3"

	"video-upscaler/internal/asset"
	"video-upscaler/internal/config"
	"video-upscaler/internal/domain"
	"video-upscaler/internal/encoder"
	"video-upscaler/internal/export"
	"video-upscaler/internal/flow"
	"video-upscaler/internal/jobs"
	"video-upscaler/internal/logger"
	"video-upscaler/internal/media"
)

type options struct {
	input        string
	outDir       string
	resolution   string
	fps          int
	format       string
	quality      string
	profilesPath string
	assumeYes    bool
}

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("load env: %v", err)))
		os.Exit(1)
	}
	defaults := config.ApplyEnv(config.DefaultSettings())

	var opts options
	flag.StringVar(&opts.input, "in", "", "input video file")
	flag.StringVar(&opts.outDir, "out", defaults.DownloadDir, "directory the result is written to")
	flag.StringVar(&opts.resolution, "resolution", "", "output resolution (1080p, 4K)")
	flag.IntVar(&opts.fps, "fps", 0, "output frame rate (30, 50, 60)")
	flag.StringVar(&opts.format, "format", "", "output format")
	flag.StringVar(&opts.quality, "quality", "", "quality preset (Fast, Balanced, High Quality)")
	flag.StringVar(&opts.profilesPath, "profiles", "", "encoding profiles YAML")
	flag.BoolVar(&opts.assumeYes, "y", false, "use defaults for unset options instead of prompting")
	flag.Parse()
	if opts.input == "" && flag.NArg() > 0 {
		opts.input = flag.Arg(0)
	}

	log := logger.New("upscale", defaults.LogLevel, defaults.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, log); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("✗ "+err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, log hclog.Logger) error {
	if opts.input == "" {
		return errors.New("no input file, pass -in <video>")
	}

	profiles, err := config.LoadProfiles(opts.profilesPath)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	events := jobs.NewEventBus(1000)
	loadTimeout := time.Duration(config.GetEnvInt(config.EnvLoadTimeout, int(media.DefaultLoadTimeout/time.Second))) * time.Second
	orch := export.New(export.Config{
		Recorder: encoder.NewFFmpegRecorder("ffmpeg", log.Named("encoder")),
		Sources:  export.FileSources(media.WithLoadTimeout(loadTimeout)),
		Sink:     export.NewDirSink(opts.outDir),
		Profiles: profiles,
		Events:   events,
		Logger:   log.Named("export"),
	})
	controller := flow.New(flow.Options{
		Exports: orch,
		Events:  events,
		Logger:  log.Named("flow"),
	})

	registry := asset.NewRegistry()
	selected, err := asset.Open(registry, opts.input)
	if err != nil {
		return errors.New(asset.UserMessage(err))
	}
	if err := controller.SelectAsset(selected); err != nil {
		return err
	}
	defer func() {
		if err := controller.Reset(); err != nil {
			log.Warn("reset", "error", err)
		}
	}()
	printAsset(selected)

	settings, err := resolveSettings(opts, controller.Settings(), selectPrompt)
	if err != nil {
		return err
	}
	if err := controller.UpdateSettings(settings); err != nil {
		return err
	}

	if err := simulateProcessing(ctx, controller); err != nil {
		return err
	}
	printEstimate(controller.Snapshot())

	return runExport(ctx, orch, export.Request{Asset: controller.Asset(), Settings: controller.Settings()})
}

// simulateProcessing drives the processing step on a progress bar until the
// flow reaches the result step.
func simulateProcessing(ctx context.Context, controller *flow.Controller) error {
	bar := newBar("Processing")
	reached := make(chan struct{})
	var once sync.Once
	unsubscribe := controller.Events().Subscribe(func(e jobs.Event) {
		switch {
		case e.Type == jobs.EventTypeProcessing && e.Processing != nil:
			_ = bar.Set(int(e.Processing.Progress))
			bar.Describe(e.Processing.StatusMessage)
		case e.Type == jobs.EventTypeStep && e.Step == domain.StepResult:
			once.Do(func() { close(reached) })
		}
	})
	defer unsubscribe()

	if err := controller.StartProcessing(); err != nil {
		return err
	}

	select {
	case <-reached:
		_ = bar.Finish()
		fmt.Println()
		return nil
	case <-ctx.Done():
		_ = bar.Exit()
		fmt.Println()
		return ctx.Err()
	}
}

func runExport(ctx context.Context, orch *export.Orchestrator, req export.Request) error {
	bar := newBar("Exporting")
	unsubscribe := orch.Events().Subscribe(func(e jobs.Event) {
		switch e.Type {
		case jobs.EventTypeProgress:
			_ = bar.Set(e.Progress)
		case jobs.EventTypeStatus:
			if e.Message != "" {
				bar.Describe(e.Message)
			}
		}
	})
	defer unsubscribe()

	if _, err := orch.Start(ctx, req); err != nil {
		return err
	}
	job, err := orch.Wait(context.Background())
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}

	printJob(job)
	if job.Status == domain.ExportStatusIdle {
		return context.Canceled
	}
	if job.ArtifactPath == "" {
		return fmt.Errorf("nothing delivered: %s", job.Error)
	}
	return nil
}

func newBar(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
	)
}
