package contract

import (
	"encoding/json"
	"fmt"

	"github.com/jackzampolin/papercast/internal/podcast"
)

// Codec parses raw model output into typed contracts. Parsing applies the
// repair pipeline (fence stripping, balanced extraction, quote and comma
// normalization) before schema and semantic validation. Callers own the
// single re-prompt on failure; the codec itself never calls a model.
type Codec struct{}

// NewCodec creates a contract codec.
func NewCodec() *Codec {
	return &Codec{}
}

// DecodeOutline parses and validates an outline contract.
func (c *Codec) DecodeOutline(content string) (*OutlineContract, error) {
	var out OutlineContract
	if err := c.decode(KindOutline, content, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodeSegment parses and validates a segment contract.
func (c *Codec) DecodeSegment(content string) (*SegmentContract, error) {
	var out SegmentContract
	if err := c.decode(KindSegment, content, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodeFactcheck parses and validates a factcheck contract against the
// drafted line count.
func (c *Codec) DecodeFactcheck(content string, lineCount int) (*FactcheckContract, error) {
	var out FactcheckContract
	if err := c.decode(KindFactcheck, content, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(lineCount); err != nil {
		return nil, malformed(KindFactcheck, err)
	}
	return &out, nil
}

// DecodeRewrite parses and validates a rewrite contract against the
// drafted line count.
func (c *Codec) DecodeRewrite(content string, lineCount int) (*RewriteContract, error) {
	var out RewriteContract
	if err := c.decode(KindRewrite, content, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(lineCount); err != nil {
		return nil, malformed(KindRewrite, err)
	}
	return &out, nil
}

func (c *Codec) decode(kind Kind, content string, dst any) error {
	parsed, err := parseJSON(content)
	if err != nil {
		return malformed(kind, err)
	}
	if err := validateJSON(SchemaFor(kind), parsed); err != nil {
		return malformed(kind, err)
	}
	if err := json.Unmarshal(parsed, dst); err != nil {
		return malformed(kind, err)
	}
	return nil
}

func malformed(kind Kind, err error) error {
	return podcast.WrapError(podcast.ErrContract, fmt.Errorf("%w: %s contract: %s", podcast.ErrMalformedContract, kind, err))
}
