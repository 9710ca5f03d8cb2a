package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pokerlens/pokeragent-worker/internal/analyzer"
	"github.com/pokerlens/pokeragent-worker/internal/clients"
	"github.com/pokerlens/pokeragent-worker/internal/config"
	"github.com/pokerlens/pokeragent-worker/internal/extractor"
	"github.com/pokerlens/pokeragent-worker/internal/orchestrator"
	"github.com/pokerlens/pokeragent-worker/internal/processor"
	"github.com/pokerlens/pokeragent-worker/internal/prompt"
	"github.com/pokerlens/pokeragent-worker/internal/queue"
	"github.com/pokerlens/pokeragent-worker/internal/storage"
	"github.com/pokerlens/pokeragent-worker/internal/utils"
	"github.com/pokerlens/pokeragent-worker/internal/web"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "pokeragent",
	Short: "Poker stream analysis worker",
	Long:  "pokeragent analyzes poker broadcast videos in two passes: hand boundary detection across stream segments, then deep per-hand extraction.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(serveCmd)
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

// runtime holds the wired component graph shared by both commands.
type runtime struct {
	cfg      *config.Config
	log      zerolog.Logger
	jobs     *storage.PostgresJobStore
	producer *queue.Producer
	orc      *orchestrator.Orchestrator
	segments *processor.SegmentProcessor
	hands    *processor.HandProcessor
	gemini   *clients.GeminiClient
}

func buildRuntime(ctx context.Context, log zerolog.Logger) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ffmpeg, err := utils.NewFFmpegHelper(cfg.TempDir)
	if err != nil {
		return nil, err
	}

	objects, err := storage.NewGCSStore(ctx, cfg.GCSBucket)
	if err != nil {
		return nil, err
	}

	jobs, err := storage.NewPostgresJobStore(cfg.PostgresURL)
	if err != nil {
		return nil, err
	}

	gemini, err := clients.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.BoundaryModelName, cfg.ExtractionModelName, log)
	if err != nil {
		return nil, err
	}

	prompts := prompt.NewBuilder()
	clips := extractor.NewClipExtractor(ffmpeg, objects,
		time.Duration(cfg.SignedURLTTLMin)*time.Minute, log)

	boundaries := analyzer.NewBoundaryAnalyzer(gemini.Boundary(), objects, prompts, log)
	handAnalyzer := analyzer.NewHandAnalyzer(gemini.Extraction(), clips, objects, prompts,
		cfg.Phase2MaxRangeSeconds, log)

	producer, err := queue.NewProducer(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	orc := orchestrator.New(jobs, producer, log)

	var callback processor.CallbackPoster
	if cfg.OrchestratorCallbackURL != "" {
		callback = web.NewCallbackClient(cfg.OrchestratorCallbackURL)
	}

	return &runtime{
		cfg:      cfg,
		log:      log,
		jobs:     jobs,
		producer: producer,
		orc:      orc,
		segments: processor.NewSegmentProcessor(clips, boundaries, orc, callback, cfg.Phase1MaxRangeSeconds, log),
		hands:    processor.NewHandProcessor(handAnalyzer, jobs, orc, log),
		gemini:   gemini,
	}, nil
}

func (r *runtime) close() {
	if err := r.gemini.Close(); err != nil {
		r.log.Warn().Err(err).Msg("gemini client close failed")
	}
	if err := r.producer.Close(); err != nil {
		r.log.Warn().Err(err).Msg("queue producer close failed")
	}
	if err := r.jobs.Close(); err != nil {
		r.log.Warn().Err(err).Msg("job store close failed")
	}
}
