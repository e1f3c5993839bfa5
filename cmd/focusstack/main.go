package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"focusstack/internal/logging"
	"focusstack/pkg/checkpoint"
	"focusstack/pkg/compositor"
	"focusstack/pkg/config"
	"focusstack/pkg/imageio"
	"focusstack/pkg/preview"
)

const usageLine = "Usage: focusstack [flags] <numWorkers> <outputPath> <inputPath...>"

// options is the fully resolved command line
type options struct {
	cfg        *config.Config
	outputPath string
	inputs     []string

	// writeConfig, when set, is where the resolved configuration is
	// written instead of running
	writeConfig string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// parseArgs resolves defaults, the optional YAML file and the flags that
// were explicitly set, in increasing order of precedence
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	defaults := config.DefaultConfig()

	fs := flag.NewFlagSet("focusstack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), usageLine)
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "YAML configuration file")
	mode := fs.String("mode", defaults.Compositing.Mode, "Work assignment policy: static or random")
	window := fs.Int("window", defaults.Compositing.WindowSize, "Odd side length of the sharpness window")
	gridRows := fs.Int("grid-rows", defaults.Locking.GridRows, "Rows of the region lock grid (random mode)")
	gridCols := fs.Int("grid-cols", defaults.Locking.GridCols, "Columns of the region lock grid (random mode)")
	scope := fs.String("scope", defaults.Sampling.Scope, "Where random windows are centred: image or band")
	duration := fs.Duration("duration", defaults.Sampling.Duration, "Stop a random-sampling run after this long (0 runs until interrupted)")
	seed := fs.Uint64("seed", defaults.Compositing.Seed, "Random seed (0 picks one from the clock)")
	previewDir := fs.String("preview-dir", defaults.Preview.Dir, "Directory for preview frames (empty disables the preview)")
	previewInterval := fs.Duration("preview-interval", defaults.Preview.Interval, "Time between preview frames")
	checkpointPath := fs.String("checkpoint", defaults.Output.Checkpoint, "Checkpoint file written on shutdown")
	resume := fs.Bool("resume", defaults.Output.Resume, "Resume from the checkpoint file when it exists")
	lockTimeout := fs.Duration("lock-timeout", defaults.Locking.AcquireTimeout, "Maximum wait for one region lock (0 waits forever)")
	verbose := fs.Bool("verbose", defaults.Output.Verbose, "Enable debug logging")
	writeConfig := fs.String("write-config", "", "Write the resolved configuration to this YAML file and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, &config.ConfigError{Field: "flags", Err: err}
	}

	// Dumping the configuration needs no positional arguments
	dumpOnly := *writeConfig != "" && fs.NArg() == 0
	if fs.NArg() < 3 && !dumpOnly {
		fs.Usage()
		return nil, &config.ConfigError{
			Field: "arguments",
			Err:   fmt.Errorf("expected <numWorkers> <outputPath> <inputPath...>, got %d argument(s)", fs.NArg()),
		}
	}
	var numWorkers uint64
	if !dumpOnly {
		n, err := strconv.ParseUint(fs.Arg(0), 10, 31)
		if err != nil {
			fs.Usage()
			return nil, &config.ConfigError{Field: "numWorkers", Err: fmt.Errorf("%q is not an unsigned integer", fs.Arg(0))}
		}
		numWorkers = n
	}

	var err error
	cfg := defaults
	if *configPath != "" {
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Compositing.Mode = *mode
		case "window":
			cfg.Compositing.WindowSize = *window
		case "grid-rows":
			cfg.Locking.GridRows = *gridRows
		case "grid-cols":
			cfg.Locking.GridCols = *gridCols
		case "scope":
			cfg.Sampling.Scope = *scope
		case "duration":
			cfg.Sampling.Duration = *duration
		case "seed":
			cfg.Compositing.Seed = *seed
		case "preview-dir":
			cfg.Preview.Dir = *previewDir
		case "preview-interval":
			cfg.Preview.Interval = *previewInterval
		case "checkpoint":
			cfg.Output.Checkpoint = *checkpointPath
		case "resume":
			cfg.Output.Resume = *resume
		case "lock-timeout":
			cfg.Locking.AcquireTimeout = *lockTimeout
		case "verbose":
			cfg.Output.Verbose = *verbose
		}
	})
	// The positional worker count always wins
	if !dumpOnly {
		cfg.Compositing.NumWorkers = int(numWorkers)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &options{cfg: cfg, writeConfig: *writeConfig}
	if !dumpOnly {
		if !imageio.SupportedOutput(fs.Arg(1)) {
			return nil, &config.ConfigError{Field: "outputPath", Err: fmt.Errorf("%w: %s", imageio.ErrUnsupportedFormat, fs.Arg(1))}
		}
		opts.outputPath = fs.Arg(1)
		opts.inputs = fs.Args()[2:]
	}
	return opts, nil
}

// run executes one compositing run and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "focusstack: %v\n", err)
		return 1
	}
	cfg := opts.cfg

	if opts.writeConfig != "" {
		if err := config.SaveConfig(cfg, opts.writeConfig); err != nil {
			fmt.Fprintf(stderr, "focusstack: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Configuration written to: %s\n", opts.writeConfig)
		return 0
	}

	runID := uuid.New()
	logger := logging.New(stderr, cfg.Output.Verbose).With("run", runID.String())

	fmt.Fprintln(stdout, "================================")
	fmt.Fprintln(stdout, "FOCUS STACKING BY CONCURRENT REGION COMPOSITING")
	fmt.Fprintln(stdout, "================================")

	stack, err := imageio.LoadStack(opts.inputs)
	if err != nil {
		logger.Error("failed to load input images", "error", err)
		return 1
	}
	width, height, format := stack.Shape()
	logger.Info("input stack loaded", "images", stack.Len(), "width", width, "height", height, "format", format.String())

	params := cfg.Params()
	params.Logger = logger
	if params.Seed == 0 {
		params.Seed = uint64(time.Now().UnixNano())
	}
	logger.Debug("compositing parameters", "seed", params.Seed, "lockTimeout", params.LockTimeout)

	if cfg.Output.Resume {
		initial, hdr, err := checkpoint.Load(cfg.Output.Checkpoint)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logger.Warn("no checkpoint to resume from, starting fresh", "path", cfg.Output.Checkpoint)
		case err != nil:
			logger.Error("failed to load checkpoint", "error", err)
			return 1
		default:
			params.Initial = initial
			logger.Info("resuming from checkpoint", "path", cfg.Output.Checkpoint, "previousRun", hdr.RunID.String())
		}
	}

	sched, err := compositor.NewScheduler(stack, params)
	if err != nil {
		fmt.Fprintf(stderr, "focusstack: %v\n", &config.ConfigError{Err: err})
		return 1
	}

	runCtx := ctx
	if cfg.Sampling.Duration > 0 && params.Policy == compositor.PolicyRandom {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Sampling.Duration)
		defer cancel()
	}

	stopPreview := startPreview(runCtx, cfg, sched, logger)

	if params.Policy == compositor.PolicyRandom {
		fmt.Fprintln(stdout, "Sampling random windows; press Ctrl+C to stop...")
	} else {
		fmt.Fprintln(stdout, "Compositing row bands...")
	}
	runErr := sched.Run(runCtx)
	stopPreview()

	if runErr != nil {
		logger.Error("compositing aborted", "error", runErr)
		return 1
	}

	printSummary(stdout, sched, stack.Len())

	code := 0
	if err := imageio.Save(opts.outputPath, sched.Output()); err != nil {
		logger.Error("failed to save output", "error", err)
		code = 1
	} else {
		fmt.Fprintf(stdout, "Output image saved to: %s\n", opts.outputPath)
	}

	if cfg.Output.Checkpoint != "" {
		if err := checkpoint.Save(cfg.Output.Checkpoint, runID, sched.Output()); err != nil {
			logger.Error("failed to save checkpoint", "error", err)
			code = 1
		} else {
			fmt.Fprintf(stdout, "Checkpoint saved to: %s\n", cfg.Output.Checkpoint)
		}
	}

	return code
}

// startPreview launches the preview loop when a preview directory is
// configured. The returned function stops the loop and renders one last
// frame of the finished output.
func startPreview(ctx context.Context, cfg *config.Config, sched *compositor.Scheduler, logger *slog.Logger) func() {
	if cfg.Preview.Dir == "" {
		return func() {}
	}
	// A snapshot holds every region lock while it copies the image, which
	// can outlast the acquisition bound and fail a healthy run
	if cfg.Locking.AcquireTimeout > 0 {
		logger.Warn("preview disabled while a lock timeout is set", "lockTimeout", cfg.Locking.AcquireTimeout)
		return func() {}
	}

	renderer, err := preview.NewFileRenderer(cfg.Preview.Dir, cfg.Preview.MaxWidth)
	if err != nil {
		logger.Warn("preview disabled", "error", err)
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- preview.Loop(ctx, sched, renderer, cfg.Preview.Interval, logger)
	}()

	return func() {
		cancel()
		if err := <-done; err != nil {
			logger.Warn("preview stopped", "error", err)
		}
		if err := renderer.RenderFrame(sched.Output()); err != nil {
			logger.Warn("failed to render final preview frame", "error", err)
		}
		logger.Info("preview frames written", "dir", renderer.Dir, "frames", renderer.Frames())
	}
}

func printSummary(w io.Writer, sched *compositor.Scheduler, numImages int) {
	stats := sched.Stats()
	elapsed := sched.Elapsed()

	fmt.Fprintf(w, "\nCompositing finished in %.2f seconds", elapsed.Seconds())
	if sched.Completed() {
		fmt.Fprintln(w, " (every pixel visited)")
	} else {
		fmt.Fprintln(w, " (stopped)")
	}

	fmt.Fprintf(w, "\nCompositing Statistics:\n")
	fmt.Fprintf(w, "=======================\n")
	fmt.Fprintf(w, "Windows evaluated: %d\n", stats.Windows)
	if secs := elapsed.Seconds(); secs > 0 {
		fmt.Fprintf(w, "Windows per second: %.0f\n", float64(stats.Windows)/secs)
	}
	fmt.Fprintf(w, "Pixels written: %d\n", stats.PixelsWritten)
	fmt.Fprintf(w, "Mean winning contrast: %.3f (std dev %.3f)\n", stats.MeanContrast, stats.ContrastStdDev)
	fmt.Fprintf(w, "Selection entropy: %.3f nats\n", stats.SelectionEntropy)
	for i := 0; i < numImages && i < len(stats.Wins); i++ {
		fmt.Fprintf(w, "- Image %d: %d windows (%.1f%%)\n", i, stats.Wins[i], stats.Shares[i]*100)
	}
}
