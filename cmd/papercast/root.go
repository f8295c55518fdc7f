package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papercast/internal/api"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/version"
)

var (
	cfgFile      string
	dataDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "papercast",
	Short: "Turn research papers into fact-checked conversational podcasts",
	Long: `Papercast transforms research papers into multi-segment, two-host
podcast episodes with fact-checked dialogue and synthesized audio.

The pipeline includes:
  - PDF and plain-text ingestion with chunked semantic indexing
  - LLM episode planning and per-segment script drafting
  - Retrieval-grounded fact checking with bounded rewrite loops
  - Multi-voice speech synthesis and episode stitching`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.papercast/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&dataDir, "data-dir", "", "artifact directory (default: ~/.papercast)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

// exitCode maps pipeline error kinds onto process exit codes so batch
// callers can branch on the failure class.
func exitCode(err error) int {
	var perr *podcast.Error
	if !errors.As(err, &perr) {
		return 1
	}
	switch perr.Kind {
	case podcast.ErrBadInput:
		return 1
	case podcast.ErrBudgetExceeded:
		return 2
	case podcast.ErrUpstreamTransient, podcast.ErrUpstreamPermanent:
		return 3
	case podcast.ErrContract, podcast.ErrVerifyUnresolvable, podcast.ErrInternal:
		return 4
	default:
		return 1
	}
}
