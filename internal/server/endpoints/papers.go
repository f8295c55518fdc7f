package endpoints

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/papercast/internal/api"
	"github.com/jackzampolin/papercast/internal/ingest"
	"github.com/jackzampolin/papercast/internal/svcctx"
)

// IngestPaperRequest is the request body for uploading a paper. Exactly one
// of path or body must be set. Path is resolved on the server host.
type IngestPaperRequest struct {
	Path  string `json:"path,omitempty"`
	Body  string `json:"body,omitempty"`
	Title string `json:"title,omitempty"`
}

// PaperResponse is the API view of an ingested paper. The body is omitted;
// it can be large and callers only need the metadata.
type PaperResponse struct {
	PaperID   string    `json:"paper_id"`
	Title     string    `json:"title"`
	Words     int       `json:"words"`
	SourceRef string    `json:"source_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IngestPaperEndpoint handles POST /api/papers.
type IngestPaperEndpoint struct{}

func (e *IngestPaperEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/papers", e.handler
}

func (e *IngestPaperEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Ingest a paper
//	@Description	Upload a paper as raw text or a server-side file path (.pdf, .txt, .md)
//	@Tags			papers
//	@Accept			json
//	@Produce		json
//	@Param			request	body		IngestPaperRequest	true	"Paper source"
//	@Success		201		{object}	PaperResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/api/papers [post]
func (e *IngestPaperEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req IngestPaperRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	paper, err := ingest.Ingest(r.Context(), ingest.Request{
		Path:   req.Path,
		Body:   req.Body,
		Title:  req.Title,
		Logger: svcctx.LoggerFrom(r.Context()),
	})
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	store := svcctx.StoreFrom(r.Context())
	if err := store.CreatePaper(paper); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, PaperResponse{
		PaperID:   paper.PaperID,
		Title:     paper.Title,
		Words:     len(strings.Fields(paper.Body)),
		SourceRef: paper.SourceRef,
		CreatedAt: paper.CreatedAt,
	})
}

func (e *IngestPaperEndpoint) Command(getServerURL func() string) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a paper from a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Text files are sent inline; PDFs go by path since extraction
			// runs on the server host.
			req := IngestPaperRequest{Title: title}
			if strings.HasSuffix(strings.ToLower(args[0]), ".pdf") {
				req.Path = args[0]
			} else {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				req.Body = string(data)
			}

			client := api.NewClient(getServerURL())
			var resp PaperResponse
			if err := client.Post(cmd.Context(), "/api/papers", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Override the derived paper title")
	return cmd
}

// ListPapersEndpoint handles GET /api/papers.
type ListPapersEndpoint struct{}

func (e *ListPapersEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/papers", e.handler
}

func (e *ListPapersEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List papers
//	@Tags			papers
//	@Produce		json
//	@Success		200	{array}	PaperResponse
//	@Router			/api/papers [get]
func (e *ListPapersEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.StoreFrom(r.Context())
	papers := store.ListPapers()
	out := make([]PaperResponse, 0, len(papers))
	for _, p := range papers {
		out = append(out, PaperResponse{
			PaperID:   p.PaperID,
			Title:     p.Title,
			Words:     len(strings.Fields(p.Body)),
			SourceRef: p.SourceRef,
			CreatedAt: p.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (e *ListPapersEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ingested papers",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var papers []PaperResponse
			if err := client.Get(cmd.Context(), "/api/papers", &papers); err != nil {
				return err
			}
			return api.Output(papers)
		},
	}
}

// GetPaperEndpoint handles GET /api/papers/{id}.
type GetPaperEndpoint struct{}

func (e *GetPaperEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/papers/{id}", e.handler
}

func (e *GetPaperEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get paper by ID
//	@Tags			papers
//	@Produce		json
//	@Param			id	path		string	true	"Paper ID"
//	@Success		200	{object}	PaperResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/papers/{id} [get]
func (e *GetPaperEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "paper id is required")
		return
	}

	store := svcctx.StoreFrom(r.Context())
	paper, err := store.GetPaper(id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, PaperResponse{
		PaperID:   paper.PaperID,
		Title:     paper.Title,
		Words:     len(strings.Fields(paper.Body)),
		SourceRef: paper.SourceRef,
		CreatedAt: paper.CreatedAt,
	})
}

func (e *GetPaperEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a paper by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp PaperResponse
			if err := client.Get(cmd.Context(), "/api/papers/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
