package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint pairs an HTTP route with the CLI subcommand that calls it, so
// every API operation is declared exactly once.
type Endpoint interface {
	// Route returns the HTTP method, path, and handler for this endpoint.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit reports whether the endpoint needs the pipeline
	// services and job manager; routes behind it answer 503 until then.
	RequiresInit() bool

	// Command returns a cobra command that calls this endpoint over HTTP.
	// getServerURL is evaluated at run time, after flags are parsed.
	Command(getServerURL func() string) *cobra.Command
}
