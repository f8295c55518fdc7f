package endpoints

import (
	"github.com/jackzampolin/papercast/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},

		// Paper endpoints
		&IngestPaperEndpoint{},
		&ListPapersEndpoint{},
		&GetPaperEndpoint{},

		// Job endpoints
		&CreateJobEndpoint{},
		&ListJobsEndpoint{},
		&GetJobEndpoint{},
		&CancelJobEndpoint{},
		&JobEventsEndpoint{},
		&JobBudgetEndpoint{},

		// Episode endpoints
		&ListEpisodesEndpoint{},
		&GetEpisodeEndpoint{},
		&EpisodeAudioEndpoint{},

		// Catalog endpoints
		&ListStylesEndpoint{},
		&ListVoicesEndpoint{},
	}
}
