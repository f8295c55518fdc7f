package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/papercast/internal/config"
	"github.com/jackzampolin/papercast/internal/ingest"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/server"
)

var (
	generateStyle    string
	generateDuration float64
	generateOut      string
	generateTitle    string
)

var generateCmd = &cobra.Command{
	Use:   "generate <file>",
	Short: "Run the full pipeline on one paper and write the episode audio",
	Long: `Generate runs the whole paper-to-episode pipeline in-process, without
the HTTP server: ingest, index, plan, draft, fact-check, synthesize,
stitch. Progress is printed as the job moves through its states.

Exit codes: 0 success, 1 bad input, 2 budget exceeded, 3 provider
failure, 4 contract or internal failure.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		}))

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}

		srv, err := server.New(server.Config{DataDir: dataDir, ConfigManager: cm, Logger: logger})
		if err != nil {
			return err
		}
		if err := srv.InitServices(ctx); err != nil {
			return err
		}
		svc := srv.Services()

		paper, err := ingest.Ingest(ctx, ingest.Request{Path: args[0], Title: generateTitle, Logger: logger})
		if err != nil {
			return err
		}
		if err := svc.Store.CreatePaper(paper); err != nil {
			return err
		}
		fmt.Printf("Ingested %q (%s)\n", paper.Title, paper.PaperID)

		styleID := generateStyle
		if styleID == "" {
			styleID = cm.Get().Defaults.Style
		}
		if !svc.Styles.Has(styleID) {
			return podcast.NewError(podcast.ErrBadInput, "unknown style %q", styleID)
		}
		target := generateDuration
		if target == 0 {
			target = cm.Get().Defaults.TargetDurationS
		}

		job := &podcast.Job{
			JobID:   uuid.New().String(),
			PaperID: paper.PaperID,
			StyleID: styleID,
			TargetS: target,
		}
		if err := svc.Store.CreateJob(job); err != nil {
			return err
		}

		past, live, cancelSub, err := svc.Store.Subscribe(job.JobID)
		if err != nil {
			return err
		}
		defer cancelSub()

		svc.Manager.Enqueue(ctx, job.JobID)

		printEvent := func(ev podcast.Transition) bool {
			fmt.Printf("  %3d%%  %s", ev.ProgressPct, ev.To)
			if ev.Detail != "" {
				fmt.Printf("  (%s)", ev.Detail)
			}
			fmt.Println()
			return !ev.To.Terminal()
		}
		running := true
		for _, ev := range past {
			running = printEvent(ev)
		}
		for running {
			select {
			case <-ctx.Done():
				return podcast.WrapError(podcast.ErrCancelled, ctx.Err())
			case ev, ok := <-live:
				if !ok {
					running = false
					break
				}
				running = printEvent(ev)
			}
		}

		final, err := svc.Store.GetJob(job.JobID)
		if err != nil {
			return err
		}
		if final.State == podcast.StateFailed {
			if final.Error != nil {
				return final.Error
			}
			return podcast.NewError(podcast.ErrInternal, "job failed without a recorded error")
		}

		episode, err := svc.Store.GetEpisode(final.EpisodeID)
		if err != nil {
			return err
		}
		audio, err := svc.Synth.Store().Read(episode.AudioRef)
		if err != nil {
			return err
		}

		out := generateOut
		if out == "" {
			base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			out = base + filepath.Ext(episode.AudioRef)
		}
		if err := os.WriteFile(out, audio, 0o644); err != nil {
			return err
		}

		fmt.Printf("\nEpisode %s\n", episode.EpisodeID)
		fmt.Printf("  Title:        %s\n", episode.Outline.EpisodeTitle)
		fmt.Printf("  Duration:     %.0fs across %d segments\n", episode.TotalDurationS, len(episode.Segments))
		fmt.Printf("  Verification: %.0f%%", episode.VerificationRate*100)
		if episode.VerificationDegraded || episode.SynthesisDegraded {
			fmt.Printf("  (degraded)")
		}
		fmt.Println()
		fmt.Printf("  Cost:         $%.4f\n", episode.TotalCostUSD)
		fmt.Printf("  Audio:        %s (%d bytes)\n", out, len(audio))
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateStyle, "style", "", "Presentation style (default from config)")
	generateCmd.Flags().Float64Var(&generateDuration, "duration", 0, "Target episode duration in seconds")
	generateCmd.Flags().StringVar(&generateOut, "out", "", "Output audio file (default derived from input name)")
	generateCmd.Flags().StringVar(&generateTitle, "title", "", "Override the derived paper title")

	rootCmd.AddCommand(generateCmd)
}
