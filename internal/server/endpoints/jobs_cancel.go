package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papercast/internal/api"
	"github.com/jackzampolin/papercast/internal/svcctx"
)

// CancelJobResponse is the response for a cancel request.
type CancelJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// CancelJobEndpoint handles DELETE /api/jobs/{id}. Cancellation is
// asynchronous: the job moves to failed with a cancelled error once the
// orchestrator observes it. Artifacts already produced are retained.
type CancelJobEndpoint struct{}

func (e *CancelJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/jobs/{id}", e.handler
}

func (e *CancelJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Cancel a job
//	@Description	Request cancellation of a queued or running job
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		202	{object}	CancelJobResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Router			/api/jobs/{id} [delete]
func (e *CancelJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}

	job, err := svcctx.StoreFrom(r.Context()).GetJob(id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	if job.State.Terminal() {
		writeError(w, http.StatusConflict, "job already finished in state "+string(job.State))
		return
	}

	if err := svcctx.ManagerFrom(r.Context()).Cancel(id); err != nil {
		writeError(w, http.StatusConflict, "job is not running")
		return
	}
	writeJSON(w, http.StatusAccepted, CancelJobResponse{JobID: id, Status: "cancelling"})
}

func (e *CancelJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp CancelJobResponse
			if err := client.Delete(cmd.Context(), "/api/jobs/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
