package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papercast/internal/api"
	"github.com/jackzampolin/papercast/internal/providers"
	"github.com/jackzampolin/papercast/internal/svcctx"
)

// ListVoicesEndpoint handles GET /api/voices.
type ListVoicesEndpoint struct{}

func (e *ListVoicesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/voices", e.handler
}

func (e *ListVoicesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List synthesis voices
//	@Description	Voices offered by the configured TTS provider
//	@Tags			voices
//	@Produce		json
//	@Success		200	{array}	providers.Voice
//	@Failure		502	{object}	ErrorResponse
//	@Router			/api/voices [get]
func (e *ListVoicesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	voices, err := svcctx.SynthFrom(r.Context()).ListVoices(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, voices)
}

func (e *ListVoicesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List synthesis voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var voices []providers.Voice
			if err := client.Get(cmd.Context(), "/api/voices", &voices); err != nil {
				return err
			}
			return api.Output(voices)
		},
	}
}
