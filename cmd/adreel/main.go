// Command adreel generates a product image and animates it into a short ad
// video from the command line.
//
//	adreel run -base-prompt "..." -ad-prompt "..."   # image then video
//	adreel image -prompt "..."                      # image only
//	adreel version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adreel/api/internal/client"
	"github.com/adreel/api/internal/config"
	"github.com/adreel/api/internal/logger"
	"github.com/adreel/api/internal/model"
	"github.com/adreel/api/internal/service"
)

var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runPipeline(os.Args[2:])
	case "image":
		err = runImage(os.Args[2:])
	case "version":
		fmt.Println("adreel", Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: adreel <command> [flags]

Commands:
  run      Generate a base image and animate it into an ad video
  image    Generate a single image
  version  Print the version

The API key is read from -api-key or FREEPIK_API_KEY.`)
}

// commonFlags are shared by every generating command
type commonFlags struct {
	apiKey       *string
	outputDir    *string
	timeout      *time.Duration
	pollInterval *time.Duration
	verbose      *bool
}

func registerCommon(fs *flag.FlagSet, cfg *config.Config) commonFlags {
	return commonFlags{
		apiKey:       fs.String("api-key", cfg.Freepik.APIKey, "Freepik API key"),
		outputDir:    fs.String("out", cfg.Pipeline.OutputDir, "Output directory"),
		timeout:      fs.Duration("timeout", 0, "Per-stage timeout override (0 uses the configured defaults)"),
		pollInterval: fs.Duration("poll-interval", 0, "Poll interval override (0 uses the configured defaults)"),
		verbose:      fs.Bool("v", false, "Verbose logging"),
	}
}

func setup(cfg *config.Config, flags commonFlags) (*service.PipelineService, *zap.Logger, error) {
	if *flags.apiKey == "" {
		return nil, nil, fmt.Errorf("API key required: set -api-key or FREEPIK_API_KEY")
	}

	level := "warn"
	if *flags.verbose {
		level = "debug"
	}
	log := logger.New(level, "console")

	pipeline := service.NewPipelineService(
		client.NewFreepikClient(&cfg.Freepik, log),
		client.NewDownloader(cfg.Pipeline.DownloadTimeout, log),
		cfg.Freepik.VideoDuration,
		service.PollSettings{
			Image: client.PollConfig{Timeout: cfg.Pipeline.ImageTimeout, Interval: cfg.Pipeline.ImagePollInterval},
			Video: client.PollConfig{Timeout: cfg.Pipeline.VideoTimeout, Interval: cfg.Pipeline.VideoPollInterval},
		},
		log,
	)
	return pipeline, log, nil
}

func runPipeline(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	basePrompt := fs.String("base-prompt", "", "Prompt for the base product image")
	adPrompt := fs.String("ad-prompt", "", "Prompt describing the ad motion")
	flags := registerCommon(fs, cfg)
	fs.Parse(args)

	if *basePrompt == "" || *adPrompt == "" {
		return fmt.Errorf("-base-prompt and -ad-prompt are required")
	}

	pipeline, log, err := setup(cfg, flags)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	id := uuid.New().String()
	poll := client.PollConfig{Timeout: *flags.timeout, Interval: *flags.pollInterval}

	result, err := pipeline.Run(ctx, &service.RunRequest{
		APIKey:     *flags.apiKey,
		BasePrompt: *basePrompt,
		AdPrompt:   *adPrompt,
		ImagePath:  service.OutputPath(*flags.outputDir, id, model.MediaTypeImage),
		VideoPath:  service.OutputPath(*flags.outputDir, id, model.MediaTypeVideo),
		ImagePoll:  poll,
		VideoPoll:  poll,
		Mode:       "cli",
		OnProgress: func(step string, percent int) {
			fmt.Printf("[%3d%%] %s\n", percent, step)
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", service.ErrorCode(err), err)
	}

	fmt.Printf("Base image: %s\n", result.Image.LocalPath)
	fmt.Printf("Video:      %s\n", result.Video.LocalPath)
	return nil
}

func runImage(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fs := flag.NewFlagSet("image", flag.ExitOnError)
	prompt := fs.String("prompt", "", "Image prompt")
	flags := registerCommon(fs, cfg)
	fs.Parse(args)

	if *prompt == "" {
		return fmt.Errorf("-prompt is required")
	}

	pipeline, log, err := setup(cfg, flags)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := pipeline.GenerateImage(ctx, &service.ImageRequest{
		APIKey:     *flags.apiKey,
		Prompt:     *prompt,
		OutputPath: service.OutputPath(*flags.outputDir, uuid.New().String(), model.MediaTypeImage),
		Poll:       client.PollConfig{Timeout: *flags.timeout, Interval: *flags.pollInterval},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", service.ErrorCode(err), err)
	}

	fmt.Printf("Image: %s\n", result.Artifact.LocalPath)
	for i, url := range result.URLs {
		fmt.Printf("  [%d] %s\n", i, url)
	}
	return nil
}
