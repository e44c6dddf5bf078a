// Command gcp-batch runs one detection batch over a scene file and prints
// the summary as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/gcp-tools-mcp/internal/config"
	"github.com/ironsheep/gcp-tools-mcp/internal/detection"
	"github.com/ironsheep/gcp-tools-mcp/internal/imaging"
	"github.com/ironsheep/gcp-tools-mcp/internal/pipeline"
	"github.com/ironsheep/gcp-tools-mcp/internal/scene"
)

func main() {
	configPath := flag.String("config", "", "JSON configuration file")
	scenePath := flag.String("scene", "", "scene file to process (required)")
	workers := flag.Int("workers", 0, "photos processed concurrently (0 = configuration)")
	skipIfPinned := flag.Bool("skip-if-pinned", false, "leave the scene untouched when any marker is pinned")
	debug := flag.Bool("debug", false, "log every photo")
	flag.Parse()

	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if *scenePath == "" {
		fmt.Fprintln(os.Stderr, "gcp-batch: -scene is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if *workers > 0 {
		cfg.Pipeline.Workers = *workers
	}
	if *skipIfPinned {
		cfg.Pipeline.SkipIfPinned = true
	}
	if *debug {
		cfg.Pipeline.Debug = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *scenePath); err != nil {
		log.Fatalf("Batch failed: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, scenePath string) error {
	cache := imaging.NewImageCacheWithCapacity(cfg.CacheCapacity)
	sc, err := scene.Load(scenePath, scene.WithImageCache(cache))
	if err != nil {
		return err
	}

	p, err := pipeline.New(sc, detection.New(cfg.Detection), cfg.Pipeline)
	if err != nil {
		return err
	}
	summary, err := p.Run(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
