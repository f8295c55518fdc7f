package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/papercast/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running papercast server via HTTP.

These commands require a running server (papercast serve).
Use --server to specify a custom server URL.

Examples:
  papercast api health              # Check server health
  papercast api papers upload x.pdf # Upload a paper
  papercast api jobs start <id>     # Start a podcast job
  papercast api jobs events <id>    # Watch job progress`,
}

var papersCmd = &cobra.Command{
	Use:   "papers",
	Short: "Paper management commands",
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Job management commands",
}

var episodesCmd = &cobra.Command{
	Use:   "episodes",
	Short: "Episode commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))

	// Papers as subcommand group
	papersCmd.AddCommand((&endpoints.IngestPaperEndpoint{}).Command(getServerURL))
	papersCmd.AddCommand((&endpoints.ListPapersEndpoint{}).Command(getServerURL))
	papersCmd.AddCommand((&endpoints.GetPaperEndpoint{}).Command(getServerURL))

	// Jobs as subcommand group
	jobsCmd.AddCommand((&endpoints.CreateJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.ListJobsEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.GetJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.CancelJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.JobEventsEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.JobBudgetEndpoint{}).Command(getServerURL))

	// Episodes as subcommand group
	episodesCmd.AddCommand((&endpoints.ListEpisodesEndpoint{}).Command(getServerURL))
	episodesCmd.AddCommand((&endpoints.GetEpisodeEndpoint{}).Command(getServerURL))
	episodesCmd.AddCommand((&endpoints.EpisodeAudioEndpoint{}).Command(getServerURL))

	// Catalog commands at top level
	apiCmd.AddCommand((&endpoints.ListStylesEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ListVoicesEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(papersCmd)
	apiCmd.AddCommand(jobsCmd)
	apiCmd.AddCommand(episodesCmd)
	rootCmd.AddCommand(apiCmd)
}
