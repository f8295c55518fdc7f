package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackzampolin/papercast/internal/podcast"
)

func longBody(title string) string {
	var b strings.Builder
	if title != "" {
		b.WriteString(title + "\n\n")
	}
	for i := 0; i < 20; i++ {
		b.WriteString("The study measures throughput across representative workloads. ")
	}
	return b.String()
}

func TestIngest_RawText(t *testing.T) {
	paper, err := Ingest(context.Background(), Request{Body: longBody("Scaling Laws for Widgets")})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if paper.PaperID == "" {
		t.Error("paper missing id")
	}
	if paper.Title != "Scaling Laws for Widgets" {
		t.Errorf("title = %q, want heading from first line", paper.Title)
	}
	if paper.SourceRef != "" {
		t.Errorf("raw text paper has source ref %q", paper.SourceRef)
	}
}

func TestIngest_TextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "attention_is_enough.txt")
	if err := os.WriteFile(path, []byte(longBody("")), 0o644); err != nil {
		t.Fatal(err)
	}

	paper, err := Ingest(context.Background(), Request{Path: path})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if paper.SourceRef != path {
		t.Errorf("source ref = %q, want %q", paper.SourceRef, path)
	}
	// Body starts with a full sentence, so the filename supplies the title.
	if paper.Title != "attention is enough" {
		t.Errorf("title = %q, want filename-derived", paper.Title)
	}
}

func TestIngest_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"empty request", Request{}},
		{"too short", Request{Body: "just a handful of words here"}},
		{"both path and body", Request{Path: "x.txt", Body: longBody("T")}},
		{"missing file", Request{Path: "/does/not/exist.txt"}},
		{"unsupported extension", Request{Path: "ingest.go"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Ingest(context.Background(), tt.req)
			if podcast.KindOf(err) != podcast.ErrBadInput {
				t.Errorf("got %v, want bad_input", err)
			}
		})
	}
}

func TestIngest_ExplicitTitleWins(t *testing.T) {
	paper, err := Ingest(context.Background(), Request{
		Body:  longBody("Some Heading"),
		Title: "Chosen Title",
	})
	if err != nil {
		t.Fatal(err)
	}
	if paper.Title != "Chosen Title" {
		t.Errorf("title = %q, want explicit title", paper.Title)
	}
}

func TestNormalizeBody(t *testing.T) {
	in := "Line one.  \r\n\r\n\r\nLine two.\fLine three.\n"
	got := normalizeBody(in)
	if strings.Contains(got, "\f") || strings.Contains(got, "\r") {
		t.Errorf("control characters survived: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank runs not collapsed: %q", got)
	}
	if !strings.HasPrefix(got, "Line one.") || !strings.HasSuffix(got, "Line three.") {
		t.Errorf("content mangled: %q", got)
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		body string
		path string
		want string
	}{
		{"markdown heading", "# A Survey of Things\n\nBody text.", "", "A Survey of Things"},
		{"sentence first line falls back", "This opening line is a full sentence.\nMore.", "my_paper-v2.pdf", "my paper v2"},
		{"no signal at all", strings.Repeat("x", 200), "", "Untitled Paper"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveTitle(tt.body, tt.path); got != tt.want {
				t.Errorf("deriveTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}
