package endpoints

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papercast/internal/api"
	"github.com/jackzampolin/papercast/internal/svcctx"
)

// EpisodeAudioEndpoint handles GET /api/episodes/{id}/audio.
type EpisodeAudioEndpoint struct{}

func (e *EpisodeAudioEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/episodes/{id}/audio", e.handler
}

func (e *EpisodeAudioEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Download episode audio
//	@Tags			episodes
//	@Produce		audio/mpeg
//	@Param			id	path	string	true	"Episode ID"
//	@Success		200	{file}	binary
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/episodes/{id}/audio [get]
func (e *EpisodeAudioEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	data, err := svcctx.SynthFrom(r.Context()).Store().Read(episode.AudioRef)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(episode.AudioRef))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(episode.AudioRef)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func contentTypeFor(ref string) string {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".opus", ".ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

func (e *EpisodeAudioEndpoint) Command(getServerURL func() string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "audio <id>",
		Short: "Download an episode's audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			data, err := client.GetRaw(cmd.Context(), "/api/episodes/"+args[0]+"/audio")
			if err != nil {
				return err
			}
			if out == "" {
				out = args[0] + ".mp3"
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %d bytes to %s\n", len(data), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default <episode-id>.mp3)")
	return cmd
}
