package endpoints

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papercast/internal/api"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/svcctx"
)

// JobSummary is the list view of a job: state and progress without the
// outline and segment payloads.
type JobSummary struct {
	JobID       string         `json:"job_id"`
	PaperID     string         `json:"paper_id"`
	StyleID     string         `json:"style_id"`
	State       podcast.State  `json:"state"`
	ProgressPct int            `json:"progress_pct"`
	EpisodeID   string         `json:"episode_id,omitempty"`
	Error       *podcast.Error `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     *time.Time     `json:"ended_at,omitempty"`
}

func summarize(j *podcast.Job) JobSummary {
	return JobSummary{
		JobID:       j.JobID,
		PaperID:     j.PaperID,
		StyleID:     j.StyleID,
		State:       j.State,
		ProgressPct: j.ProgressPct,
		EpisodeID:   j.EpisodeID,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		EndedAt:     j.EndedAt,
	}
}

// ListJobsEndpoint handles GET /api/jobs.
type ListJobsEndpoint struct{}

func (e *ListJobsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs", e.handler
}

func (e *ListJobsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List jobs
//	@Description	List all jobs, newest first
//	@Tags			jobs
//	@Produce		json
//	@Success		200	{array}	JobSummary
//	@Router			/api/jobs [get]
func (e *ListJobsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jobs := svcctx.StoreFrom(r.Context()).ListJobs()
	out := make([]JobSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, summarize(j))
	}
	writeJSON(w, http.StatusOK, out)
}

func (e *ListJobsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var jobs []JobSummary
			if err := client.Get(cmd.Context(), "/api/jobs", &jobs); err != nil {
				return err
			}
			return api.Output(jobs)
		},
	}
}
