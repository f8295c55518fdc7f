package endpoints

import (
	"net/http"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papercast/internal/api"
	"github.com/jackzampolin/papercast/internal/svcctx"
)

// StyleHost is the API view of one host in a style.
type StyleHost struct {
	Speaker       string `json:"speaker"`
	Role          string `json:"role"`
	SpeechRateWPM int    `json:"speech_rate_wpm"`
	Energy        string `json:"energy"`
}

// StyleResponse is the API view of a presentation style.
type StyleResponse struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Hosts       []StyleHost `json:"hosts"`
}

// ListStylesEndpoint handles GET /api/styles.
type ListStylesEndpoint struct{}

func (e *ListStylesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/styles", e.handler
}

func (e *ListStylesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List presentation styles
//	@Tags			styles
//	@Produce		json
//	@Success		200	{array}	StyleResponse
//	@Router			/api/styles [get]
func (e *ListStylesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	styles := svcctx.StylesFrom(r.Context()).List()
	out := make([]StyleResponse, 0, len(styles))
	for _, s := range styles {
		resp := StyleResponse{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
		}
		for speaker, h := range s.Hosts {
			resp.Hosts = append(resp.Hosts, StyleHost{
				Speaker:       string(speaker),
				Role:          string(h.Role),
				SpeechRateWPM: h.SpeechRateWPM,
				Energy:        h.Energy,
			})
		}
		sort.Slice(resp.Hosts, func(i, j int) bool { return resp.Hosts[i].Speaker < resp.Hosts[j].Speaker })
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (e *ListStylesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List available presentation styles",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var styles []StyleResponse
			if err := client.Get(cmd.Context(), "/api/styles", &styles); err != nil {
				return err
			}
			return api.Output(styles)
		},
	}
}
