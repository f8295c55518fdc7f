package synth

import (
	"context"
	"fmt"
	"os"
)

// MockStitcher is a Stitcher for tests. It concatenates raw bytes and
// derives durations from byte length so nothing shells out to ffmpeg.
type MockStitcher struct {
	// BytesPerMS controls the fake duration math (default 10).
	BytesPerMS int
}

var _ Stitcher = (*MockStitcher)(nil)

// NewMockStitcher creates a mock stitcher.
func NewMockStitcher() *MockStitcher {
	return &MockStitcher{BytesPerMS: 10}
}

// Concat joins input bytes, separating them with a gap marker.
func (m *MockStitcher) Concat(_ context.Context, inputs []string, output string, gapMS int) (int, error) {
	if len(inputs) == 0 {
		return 0, fmt.Errorf("mock stitcher: no input files")
	}
	var joined []byte
	for i, in := range inputs {
		if i > 0 && gapMS > 0 {
			joined = append(joined, []byte(fmt.Sprintf("[gap %dms]", gapMS))...)
		}
		data, err := os.ReadFile(in)
		if err != nil {
			return 0, fmt.Errorf("mock stitcher: %w", err)
		}
		joined = append(joined, data...)
	}
	if err := os.WriteFile(output, joined, 0644); err != nil {
		return 0, fmt.Errorf("mock stitcher: %w", err)
	}
	return m.duration(len(joined)), nil
}

// Silence writes a placeholder of the requested duration.
func (m *MockStitcher) Silence(_ context.Context, output string, durationMS int) error {
	data := make([]byte, durationMS*m.bytesPerMS())
	return os.WriteFile(output, data, 0644)
}

// Duration derives a fake duration from file size.
func (m *MockStitcher) Duration(_ context.Context, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return m.duration(int(info.Size())), nil
}

func (m *MockStitcher) duration(bytes int) int {
	return bytes / m.bytesPerMS()
}

func (m *MockStitcher) bytesPerMS() int {
	if m.BytesPerMS <= 0 {
		return 10
	}
	return m.BytesPerMS
}
