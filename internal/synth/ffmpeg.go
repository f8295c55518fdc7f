package synth

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Stitcher concatenates audio artifacts and produces silence placeholders.
type Stitcher interface {
	// Concat joins input files into output with a fixed gap between them.
	// Returns the output duration in milliseconds.
	Concat(ctx context.Context, inputs []string, output string, gapMS int) (int, error)

	// Silence writes a silent artifact of the given duration.
	Silence(ctx context.Context, output string, durationMS int) error

	// Duration reports an artifact's duration in milliseconds.
	Duration(ctx context.Context, path string) (int, error)
}

// FFmpegStitcher shells out to ffmpeg/ffprobe using the concat demuxer.
type FFmpegStitcher struct{}

var _ Stitcher = (*FFmpegStitcher)(nil)

// CheckFFmpegAvailable verifies ffmpeg and ffprobe are on PATH.
func CheckFFmpegAvailable() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return nil
}

// Concat joins input files via the concat demuxer. A positive gap inserts a
// generated silence file between inputs. Stream copy is used when no gap is
// needed so segments are never re-encoded twice.
func (f *FFmpegStitcher) Concat(ctx context.Context, inputs []string, output string, gapMS int) (int, error) {
	if len(inputs) == 0 {
		return 0, fmt.Errorf("ffmpeg concat: no input files")
	}

	if len(inputs) == 1 && gapMS <= 0 {
		data, err := os.ReadFile(inputs[0])
		if err != nil {
			return 0, fmt.Errorf("ffmpeg concat: %w", err)
		}
		if err := os.WriteFile(output, data, 0644); err != nil {
			return 0, fmt.Errorf("ffmpeg concat: %w", err)
		}
		return f.Duration(ctx, output)
	}

	files := inputs
	if gapMS > 0 {
		gapPath := output + ".gap.mp3"
		if err := f.Silence(ctx, gapPath, gapMS); err != nil {
			return 0, err
		}
		defer os.Remove(gapPath)

		interleaved := make([]string, 0, len(inputs)*2-1)
		for i, in := range inputs {
			if i > 0 {
				interleaved = append(interleaved, gapPath)
			}
			interleaved = append(interleaved, in)
		}
		files = interleaved
	}

	// Concat demuxer list file; single quotes in paths must be escaped.
	listPath := output + ".txt"
	var lines []string
	for _, file := range files {
		escaped := strings.ReplaceAll(file, "'", "'\\''")
		lines = append(lines, fmt.Sprintf("file '%s'", escaped))
	}
	if err := os.WriteFile(listPath, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return 0, fmt.Errorf("ffmpeg concat: list file: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{"-f", "concat", "-safe", "0", "-i", listPath}
	if gapMS > 0 {
		// Generated silence rarely matches the stream parameters of the
		// provider audio, so re-encode instead of stream copy.
		args = append(args, "-acodec", "libmp3lame", "-q:a", "4")
	} else {
		args = append(args, "-c", "copy")
	}
	args = append(args, "-y", output)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return 0, fmt.Errorf("ffmpeg concat failed: %w\noutput: %s", err, string(out))
	}
	return f.Duration(ctx, output)
}

// Silence writes a silent MP3 of the given duration via the anullsrc
// source.
func (f *FFmpegStitcher) Silence(ctx context.Context, output string, durationMS int) error {
	if durationMS <= 0 {
		durationMS = 100
	}
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "lavfi",
		"-i", "anullsrc=r=24000:cl=mono",
		"-t", fmt.Sprintf("%.3f", float64(durationMS)/1000.0),
		"-acodec", "libmp3lame",
		"-q:a", "9",
		"-y", output,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg silence failed: %w\noutput: %s", err, string(out))
	}
	return nil
}

// Duration reports a file's duration in milliseconds via ffprobe.
func (f *FFmpegStitcher) Duration(ctx context.Context, path string) (int, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("ffprobe: parse duration: %w", err)
	}
	return int(durationSec * 1000), nil
}
