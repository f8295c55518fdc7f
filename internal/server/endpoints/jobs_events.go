package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papercast/internal/api"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/svcctx"
)

// JobEventsEndpoint handles GET /api/jobs/{id}/events.
//
// Plain requests return the transition log as a JSON array. With
// ?follow=true or Accept: text/event-stream the endpoint streams events
// over SSE, replaying history first and closing after the terminal
// transition.
type JobEventsEndpoint struct{}

func (e *JobEventsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}/events", e.handler
}

func (e *JobEventsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Job transition events
//	@Description	Transition log of a job, as JSON or a live SSE stream
//	@Tags			jobs
//	@Produce		json
//	@Param			id		path	string	true	"Job ID"
//	@Param			follow	query	bool	false	"Stream events over SSE"
//	@Success		200	{array}	podcast.Transition
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/jobs/{id}/events [get]
func (e *JobEventsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}
	store := svcctx.StoreFrom(r.Context())

	follow := r.URL.Query().Get("follow") == "true" ||
		strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	if !follow {
		events, err := store.Events(id)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, events)
		return
	}

	past, live, cancel, err := store.Subscribe(id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	defer cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(ev podcast.Transition) bool {
		data, err := json.Marshal(ev)
		if err != nil {
			return false
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
		return !ev.To.Terminal()
	}

	for _, ev := range past {
		if !send(ev) {
			return
		}
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-live:
			if !ok {
				return
			}
			if !send(ev) {
				return
			}
		}
	}
}

func (e *JobEventsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "events <id>",
		Short: "Show a job's transition log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var events []podcast.Transition
			if err := client.Get(cmd.Context(), "/api/jobs/"+args[0]+"/events", &events); err != nil {
				return err
			}
			return api.Output(events)
		},
	}
}
