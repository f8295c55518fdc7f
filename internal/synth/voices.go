// Package synth implements the synthesizer gateway: voice mapping, the
// audio artifact store, per-line TTS with degradation, and episode
// stitching.
package synth

import (
	"fmt"
	"os"

	_ "embed"

	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/papercast/internal/podcast"
)

//go:embed voices.yaml
var voicesYAML []byte

// VoiceMap resolves {style, speaker} pairs to concrete provider voice ids.
// Resolution is pure: the same pair always yields the same voice.
type VoiceMap struct {
	DefaultVoice string                                `yaml:"default_voice"`
	Styles       map[string]map[podcast.Speaker]string `yaml:"styles"`
}

// LoadVoiceMap parses the built-in voice mapping.
func LoadVoiceMap() (*VoiceMap, error) {
	return parseVoiceMap(voicesYAML)
}

// LoadVoiceMapFile parses a voice mapping override from a YAML file.
func LoadVoiceMapFile(path string) (*VoiceMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("voice map: %w", err)
	}
	return parseVoiceMap(data)
}

func parseVoiceMap(data []byte) (*VoiceMap, error) {
	var vm VoiceMap
	if err := yaml.Unmarshal(data, &vm); err != nil {
		return nil, fmt.Errorf("voice map: %w", err)
	}
	if vm.DefaultVoice == "" {
		return nil, fmt.Errorf("voice map: missing default_voice")
	}
	return &vm, nil
}

// Resolve maps a speaker within a style to a voice id. Unmapped speakers
// fall back to the style's narrator voice, then to the default voice.
func (vm *VoiceMap) Resolve(styleID string, speaker podcast.Speaker) string {
	if style, ok := vm.Styles[styleID]; ok {
		if v, ok := style[speaker]; ok && v != "" {
			return v
		}
		if v, ok := style[podcast.SpeakerNarrator]; ok && v != "" {
			return v
		}
	}
	return vm.DefaultVoice
}
