// Package ingest turns uploaded paper sources into Paper records: plain
// text and markdown directly, PDFs via text extraction.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/jackzampolin/papercast/internal/podcast"
)

// MinBodyWords is the smallest body accepted as a paper. Anything shorter
// cannot support an episode outline.
const MinBodyWords = 50

// maxTitleLen bounds how long a first line can be and still read as a title.
const maxTitleLen = 120

// Request describes one paper to ingest. Exactly one of Path or Body must
// be set.
type Request struct {
	Path   string // source file (.pdf, .txt, .md)
	Body   string // raw text, used when Path is empty
	Title  string // optional; derived from content or filename if empty
	Logger *slog.Logger
}

// Ingest validates the request and produces an immutable Paper record.
func Ingest(ctx context.Context, req Request) (*podcast.Paper, error) {
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}

	var body, sourceRef string
	switch {
	case req.Path != "" && req.Body != "":
		return nil, podcast.NewError(podcast.ErrBadInput, "provide a file path or raw text, not both")
	case req.Path != "":
		extracted, err := extractFile(ctx, req.Path, log)
		if err != nil {
			return nil, err
		}
		body = extracted
		sourceRef = req.Path
	case req.Body != "":
		body = req.Body
	default:
		return nil, podcast.NewError(podcast.ErrBadInput, "empty paper: no file path and no text")
	}

	body = normalizeBody(body)
	if n := len(strings.Fields(body)); n < MinBodyWords {
		return nil, podcast.NewError(podcast.ErrBadInput, "paper too short: %d words, need at least %d", n, MinBodyWords)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = deriveTitle(body, req.Path)
	}

	paper := &podcast.Paper{
		PaperID:   uuid.New().String(),
		Title:     title,
		Body:      body,
		SourceRef: sourceRef,
		CreatedAt: time.Now().UTC(),
	}
	log.Info("paper ingested", "paper_id", paper.PaperID, "title", title, "words", len(strings.Fields(body)))
	return paper, nil
}

// extractFile reads a source file into text, routing PDFs through
// extraction.
func extractFile(ctx context.Context, path string, log *slog.Logger) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", podcast.NewError(podcast.ErrBadInput, "source not found: %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(ctx, path, log)
	case ".txt", ".md", ".text", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", podcast.WrapError(podcast.ErrInternal, err)
		}
		return string(data), nil
	default:
		return "", podcast.NewError(podcast.ErrBadInput, "unsupported source type %s", filepath.Ext(path))
	}
}

// extractPDF validates the document with pdfcpu and extracts its text with
// pdftotext (poppler-utils).
func extractPDF(ctx context.Context, path string, log *slog.Logger) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", podcast.WrapError(podcast.ErrInternal, err)
	}
	pageCount, err := api.PageCount(f, nil)
	f.Close()
	if err != nil {
		return "", podcast.NewError(podcast.ErrBadInput, "not a readable PDF: %v", err)
	}
	if pageCount == 0 {
		return "", podcast.NewError(podcast.ErrBadInput, "PDF has no pages")
	}
	log.Debug("extracting PDF text", "file", filepath.Base(path), "pages", pageCount)

	tmpDir, err := os.MkdirTemp("", "papercast-pdf-*")
	if err != nil {
		return "", podcast.WrapError(podcast.ErrInternal, err)
	}
	defer os.RemoveAll(tmpDir)

	outPath := filepath.Join(tmpDir, "paper.txt")
	cmd := exec.CommandContext(ctx, "pdftotext",
		"-layout",
		"-enc", "UTF-8",
		path,
		outPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", podcast.NewError(podcast.ErrBadInput, "pdftotext failed: %v (output: %s)", err, strings.TrimSpace(string(output)))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return "", podcast.WrapError(podcast.ErrInternal, err)
	}
	return string(data), nil
}

// CheckPdftotextAvailable reports whether PDF ingestion can work on this
// host.
func CheckPdftotextAvailable() error {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return fmt.Errorf("pdftotext not found in PATH (install poppler-utils): %w", err)
	}
	return nil
}

// normalizeBody collapses whitespace runs and strips form feeds left by PDF
// extraction, preserving paragraph breaks.
func normalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\f", "\n\n")
	body = strings.ReplaceAll(body, "\r\n", "\n")

	var out []string
	blank := 0
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			blank++
			if blank == 1 {
				out = append(out, "")
			}
			continue
		}
		blank = 0
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// deriveTitle picks a title from the first content line when it reads like
// a heading, falling back to the source filename.
func deriveTitle(body, path string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line == "" {
			continue
		}
		if len(line) <= maxTitleLen && !strings.HasSuffix(line, ".") {
			return line
		}
		break
	}
	if path != "" {
		base := filepath.Base(path)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		name = strings.ReplaceAll(name, "_", " ")
		name = strings.ReplaceAll(name, "-", " ")
		return strings.TrimSpace(name)
	}
	return "Untitled Paper"
}
