package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vppe",
	Short: "Scanned-PDF-to-EPUB3 pipeline driven by a vision language model",
	Long: `vppe turns a scanned PDF into an EPUB3 book by rasterizing each page,
sending it to a vision language model for OCR, and assembling the
recognized text into a reflowable EPUB3 with chapter boundaries.

The server provides:
  - POST /api/jobs               upload a PDF and start a conversion job
  - GET  /api/jobs/{id}           job status snapshot
  - GET  /api/jobs/{id}/events    live progress over Server-Sent Events
  - GET  /api/jobs/{id}/result    download the assembled EPUB
  - POST /api/jobs/{id}/retry     re-run only the pages that failed`,
	Version: vppeVersion,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (optional; VPPE_* env vars are read regardless)",
	)
	rootCmd.AddCommand(versionCmd)
}
