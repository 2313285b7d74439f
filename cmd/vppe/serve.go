package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hasangilak/vision-pdf-to-epub/internal/cleanup"
	"github.com/hasangilak/vision-pdf-to-epub/internal/config"
	"github.com/hasangilak/vision-pdf-to-epub/internal/httpapi"
	"github.com/hasangilak/vision-pdf-to-epub/internal/job"
	"github.com/hasangilak/vision-pdf-to-epub/internal/logging"
	"github.com/hasangilak/vision-pdf-to-epub/internal/ocr"
	"github.com/hasangilak/vision-pdf-to-epub/internal/orchestrator"
	"github.com/hasangilak/vision-pdf-to-epub/internal/render"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vppe HTTP server",
	Long: `Start the HTTP server that accepts PDF uploads, runs the
render -> OCR -> assemble pipeline, and serves job status/events/results.

Examples:
  vppe serve                    # bind VPPE_HOST:VPPE_PORT (default 127.0.0.1:8080)
  vppe serve --config vppe.yaml # load additional settings from a config file`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := logging.New(cfg.LogLevel)

		registry, err := job.NewFileRegistry(job.FileRegistryConfig{
			DataRoot: cfg.DataDir,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("open job registry: %w", err)
		}
		defer registry.Close()

		renderPool := render.NewPool(render.Config{
			Logger:  logger,
			Workers: cfg.RenderWorkers,
		})
		renderPool.Start(ctx)
		defer renderPool.Close()

		ocrClient := ocr.New(ocr.Config{
			BaseURL:    cfg.OllamaBaseURL,
			Model:      cfg.OllamaModel,
			Timeout:    cfg.OCRTimeout(),
			MaxRetries: uint(cfg.OCRRetries),
		})

		orch := orchestrator.New(registry, renderPool, ocrClient, orchestrator.Config{
			RenderQueueSize: cfg.RenderQueueSize,
			OCRWorkers:      cfg.OCRWorkers,
			PagesPerChapter: cfg.PagesPerChapter,
			DPI:             cfg.RenderDPI,
			JPEGQuality:     cfg.JPEGQuality,
			DefaultPrompt:   cfg.DefaultOCRPrompt,
		}, logger)

		cleanupLoop := cleanup.New(registry, cleanup.Config{
			Interval: cfg.CleanupInterval(),
			JobTTL:   cfg.JobTTL(),
			PDFTTL:   cfg.PDFTTL(),
			Logger:   logger,
		})
		go cleanupLoop.Run(ctx)

		srv := httpapi.New(httpapi.Config{
			Host:              cfg.Host,
			Port:              cfg.Port,
			Registry:          registry,
			Orchestrator:      orch,
			Logger:            logger,
			SSERingBufferSize: cfg.SSERingBufferSize,
		})

		logger.Info("starting vppe server", "addr", srv.Addr(), "data_dir", cfg.DataDir)
		return srv.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
