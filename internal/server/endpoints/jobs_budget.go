package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papercast/internal/api"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/svcctx"
)

// JobBudgetEndpoint handles GET /api/jobs/{id}/budget.
type JobBudgetEndpoint struct{}

func (e *JobBudgetEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}/budget", e.handler
}

func (e *JobBudgetEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Job budget ledger
//	@Description	Current spend, token usage, and limit headroom for a job
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		200	{object}	podcast.BudgetSnapshot
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/jobs/{id}/budget [get]
func (e *JobBudgetEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}
	// Validate the job exists; the governor returns an empty ledger for
	// unknown IDs.
	if _, err := svcctx.StoreFrom(r.Context()).GetJob(id); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, svcctx.GovernorFrom(r.Context()).Snapshot(id))
}

func (e *JobBudgetEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "budget <id>",
		Short: "Show a job's budget ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var snap podcast.BudgetSnapshot
			if err := client.Get(cmd.Context(), "/api/jobs/"+args[0]+"/budget", &snap); err != nil {
				return err
			}
			return api.Output(snap)
		},
	}
}
