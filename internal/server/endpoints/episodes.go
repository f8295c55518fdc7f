package endpoints

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papercast/internal/api"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/svcctx"
)

// EpisodeSummary is the list view of an episode.
type EpisodeSummary struct {
	EpisodeID            string    `json:"episode_id"`
	PaperID              string    `json:"paper_id"`
	Title                string    `json:"title"`
	StyleID              string    `json:"style_id"`
	SegmentCount         int       `json:"segment_count"`
	TotalDurationS       float64   `json:"total_duration_s"`
	VerificationRate     float64   `json:"verification_rate"`
	VerificationDegraded bool      `json:"verification_degraded"`
	SynthesisDegraded    bool      `json:"synthesis_degraded"`
	CreatedAt            time.Time `json:"created_at"`
}

// ListEpisodesEndpoint handles GET /api/episodes.
type ListEpisodesEndpoint struct{}

func (e *ListEpisodesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/episodes", e.handler
}

func (e *ListEpisodesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List episodes
//	@Tags			episodes
//	@Produce		json
//	@Success		200	{array}	EpisodeSummary
//	@Router			/api/episodes [get]
func (e *ListEpisodesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	episodes := svcctx.StoreFrom(r.Context()).ListEpisodes()
	out := make([]EpisodeSummary, 0, len(episodes))
	for _, ep := range episodes {
		out = append(out, EpisodeSummary{
			EpisodeID:            ep.EpisodeID,
			PaperID:              ep.PaperID,
			Title:                ep.Outline.EpisodeTitle,
			StyleID:              ep.StyleID,
			SegmentCount:         len(ep.Segments),
			TotalDurationS:       ep.TotalDurationS,
			VerificationRate:     ep.VerificationRate,
			VerificationDegraded: ep.VerificationDegraded,
			SynthesisDegraded:    ep.SynthesisDegraded,
			CreatedAt:            ep.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (e *ListEpisodesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List completed episodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var episodes []EpisodeSummary
			if err := client.Get(cmd.Context(), "/api/episodes", &episodes); err != nil {
				return err
			}
			return api.Output(episodes)
		},
	}
}

// GetEpisodeEndpoint handles GET /api/episodes/{id}.
type GetEpisodeEndpoint struct{}

func (e *GetEpisodeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/episodes/{id}", e.handler
}

func (e *GetEpisodeEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get episode by ID
//	@Description	Full episode record including per-segment verification scores
//	@Tags			episodes
//	@Produce		json
//	@Param			id	path		string	true	"Episode ID"
//	@Success		200	{object}	podcast.Episode
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/episodes/{id} [get]
func (e *GetEpisodeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "episode id is required")
		return
	}

	episode, err := svcctx.StoreFrom(r.Context()).GetEpisode(id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, episode)
}

func (e *GetEpisodeEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get an episode by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var episode podcast.Episode
			if err := client.Get(cmd.Context(), "/api/episodes/"+args[0], &episode); err != nil {
				return err
			}
			return api.Output(episode)
		},
	}
}
