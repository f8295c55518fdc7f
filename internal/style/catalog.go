// Package style implements the podcast style engine: the built-in style
// catalog, content classification, speaker assignment, speech enhancement,
// and structural segments (intro, ad break, outro).
package style

import (
	"fmt"
	"sort"
	"strings"

	_ "embed"

	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/papercast/internal/podcast"
)

//go:embed catalog.yaml
var catalogYAML []byte

// DefaultStyleID is used when a job does not name a style.
const DefaultStyleID = "npr_calm"

// Role describes what a host does in the conversation.
type Role string

const (
	RoleQuestioner Role = "questioner"
	RoleExplainer  Role = "explainer"
	RoleCritical   Role = "critical"
)

// HostProfile declares one host's delivery hints.
type HostProfile struct {
	Role          Role   `yaml:"role"`
	SpeechRateWPM int    `yaml:"speech_rate_wpm"`
	Energy        string `yaml:"energy"`
}

// Flow holds the conversation-flow weights of a style.
type Flow struct {
	InterruptionRate float64 `yaml:"interruption_rate"`
	AgreementRate    float64 `yaml:"agreement_rate"`
	FollowUpRate     float64 `yaml:"follow_up_rate"`
	TransitionStyle  string  `yaml:"transition_style"`
}

// OppositionRate is the complement of the agreement rate.
func (f Flow) OppositionRate() float64 {
	return 1 - f.AgreementRate
}

// Templates holds the structural segment line templates. Lines may contain
// {topic}, replaced with the episode topic when rendered.
type Templates struct {
	Intro      []string `yaml:"intro"`
	AdBreak    []string `yaml:"ad_break"`
	Outro      []string `yaml:"outro"`
	Transition []string `yaml:"transition"`
}

// Style is one entry of the closed style catalog.
type Style struct {
	ID          string                           `yaml:"-"`
	Name        string                           `yaml:"name"`
	Description string                           `yaml:"description"`
	Hosts       map[podcast.Speaker]HostProfile  `yaml:"hosts"`
	Flow        Flow                             `yaml:"flow"`
	Fillers     []string                         `yaml:"fillers"`
	Templates   Templates                        `yaml:"templates"`
}

// Brief returns the prose description sent to the reasoner as the style
// brief.
func (s *Style) Brief() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", s.Name, s.Description)
	fmt.Fprintf(&b, " Agreement between hosts is %s; disagreement %s.",
		rateWord(s.Flow.AgreementRate), rateWord(s.Flow.OppositionRate()))
	return b.String()
}

// HostFor returns the host speaker holding the given role. Falls back to
// host2, the default explainer seat.
func (s *Style) HostFor(role Role) podcast.Speaker {
	for _, sp := range []podcast.Speaker{podcast.SpeakerHost1, podcast.SpeakerHost2} {
		if h, ok := s.Hosts[sp]; ok && h.Role == role {
			return sp
		}
	}
	return podcast.SpeakerHost2
}

// StylePatterns returns the style's template lines as retrievable patterns
// for the style index.
func (s *Style) StylePatterns() []podcast.StylePattern {
	var out []podcast.StylePattern
	add := func(section string, texts []string) {
		for _, t := range texts {
			out = append(out, podcast.StylePattern{StyleID: s.ID, Section: section, Text: t})
		}
	}
	add("opening", s.Templates.Intro)
	add("transition", s.Templates.Transition)
	add("closing", s.Templates.Outro)
	add("reaction", s.Fillers)
	return out
}

// Catalog is the closed set of styles.
type Catalog struct {
	styles map[string]*Style
}

type catalogFile struct {
	Styles map[string]*Style `yaml:"styles"`
}

// LoadCatalog parses and validates the built-in style catalog.
func LoadCatalog() (*Catalog, error) {
	return parseCatalog(catalogYAML)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("style catalog: %w", err)
	}
	if len(file.Styles) == 0 {
		return nil, fmt.Errorf("style catalog: no styles defined")
	}

	for id, s := range file.Styles {
		s.ID = id
		if err := validateStyle(s); err != nil {
			return nil, fmt.Errorf("style catalog: %s: %w", id, err)
		}
	}
	if _, ok := file.Styles[DefaultStyleID]; !ok {
		return nil, fmt.Errorf("style catalog: missing default style %s", DefaultStyleID)
	}
	return &Catalog{styles: file.Styles}, nil
}

func validateStyle(s *Style) error {
	if s.Name == "" || s.Description == "" {
		return fmt.Errorf("missing name or description")
	}
	for _, sp := range []podcast.Speaker{podcast.SpeakerHost1, podcast.SpeakerHost2} {
		h, ok := s.Hosts[sp]
		if !ok {
			return fmt.Errorf("missing host %s", sp)
		}
		switch h.Role {
		case RoleQuestioner, RoleExplainer, RoleCritical:
		default:
			return fmt.Errorf("host %s has unknown role %q", sp, h.Role)
		}
		if h.SpeechRateWPM <= 0 {
			return fmt.Errorf("host %s has non-positive speech rate", sp)
		}
	}
	if s.Flow.AgreementRate < 0 || s.Flow.AgreementRate > 1 {
		return fmt.Errorf("agreement_rate %.2f out of range [0,1]", s.Flow.AgreementRate)
	}
	if len(s.Templates.Intro) == 0 || len(s.Templates.Outro) == 0 {
		return fmt.Errorf("missing intro or outro templates")
	}
	return nil
}

// Get returns a style by id.
func (c *Catalog) Get(id string) (*Style, error) {
	s, ok := c.styles[id]
	if !ok {
		return nil, podcast.NewError(podcast.ErrBadInput, "unknown style %q", id)
	}
	return s, nil
}

// Has reports whether a style id exists.
func (c *Catalog) Has(id string) bool {
	_, ok := c.styles[id]
	return ok
}

// List returns all styles sorted by id.
func (c *Catalog) List() []*Style {
	out := make([]*Style, 0, len(c.styles))
	for _, s := range c.styles {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllPatterns returns the style patterns of every catalog entry, used to
// seed the style index at startup.
func (c *Catalog) AllPatterns() []podcast.StylePattern {
	var out []podcast.StylePattern
	for _, s := range c.List() {
		out = append(out, s.StylePatterns()...)
	}
	return out
}

func rateWord(rate float64) string {
	switch {
	case rate >= 0.7:
		return "frequent"
	case rate >= 0.4:
		return "common"
	case rate >= 0.2:
		return "occasional"
	default:
		return "rare"
	}
}
