package endpoints

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/papercast/internal/api"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/svcctx"
)

// Bounds on the requested episode length. A minute is the shortest outline
// that still fits intro and outro; two hours is past any sane paper.
const (
	minTargetDurationS = 60
	maxTargetDurationS = 7200
)

// CreateJobRequest is the request body for starting a podcast job.
type CreateJobRequest struct {
	PaperID   string  `json:"paper_id"`
	StyleID   string  `json:"style_id,omitempty"`
	TargetS   float64 `json:"target_duration_s,omitempty"`
}

// CreateJobResponse is the response for starting a job.
type CreateJobResponse struct {
	JobID   string  `json:"job_id"`
	StyleID string  `json:"style_id"`
	TargetS float64 `json:"target_duration_s"`
}

// CreateJobEndpoint handles POST /api/jobs.
type CreateJobEndpoint struct{}

func (e *CreateJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs", e.handler
}

func (e *CreateJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Start a podcast job
//	@Description	Kick off the paper-to-episode pipeline for an ingested paper
//	@Tags			jobs
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateJobRequest	true	"Job parameters"
//	@Success		201		{object}	CreateJobResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/jobs [post]
func (e *CreateJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PaperID == "" {
		writeError(w, http.StatusBadRequest, "paper_id is required")
		return
	}

	styleID := req.StyleID
	target := req.TargetS
	if cm := svcctx.ConfigFrom(r.Context()); cm != nil {
		if styleID == "" {
			styleID = cm.Get().Defaults.Style
		}
		if target == 0 {
			target = cm.Get().Defaults.TargetDurationS
		}
	}
	if styleID == "" {
		styleID = "npr_calm"
	}
	if target == 0 {
		target = 900
	}
	if target < minTargetDurationS || target > maxTargetDurationS {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("target_duration_s must be between %d and %d", minTargetDurationS, maxTargetDurationS))
		return
	}

	styles := svcctx.StylesFrom(r.Context())
	if !styles.Has(styleID) {
		writeError(w, http.StatusBadRequest, "unknown style: "+styleID)
		return
	}

	store := svcctx.StoreFrom(r.Context())
	job := &podcast.Job{
		JobID:   uuid.New().String(),
		PaperID: req.PaperID,
		StyleID: styleID,
		TargetS: target,
	}
	if err := store.CreateJob(job); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	// The job must outlive this request; keep services, drop cancellation.
	svcctx.ManagerFrom(r.Context()).Enqueue(context.WithoutCancel(r.Context()), job.JobID)

	writeJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:   job.JobID,
		StyleID: styleID,
		TargetS: target,
	})
}

func (e *CreateJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	var styleID string
	var target float64
	cmd := &cobra.Command{
		Use:   "start <paper-id>",
		Short: "Start a podcast job for a paper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp CreateJobResponse
			req := CreateJobRequest{PaperID: args[0], StyleID: styleID, TargetS: target}
			if err := client.Post(cmd.Context(), "/api/jobs", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&styleID, "style", "", "Presentation style (default from server config)")
	cmd.Flags().Float64Var(&target, "duration", 0, "Target episode duration in seconds")
	return cmd
}
