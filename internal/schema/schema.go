// Package schema validates per-episode intro payloads against the v1 API
// contract.
package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"intro-verifier/internal/dataset"
	"intro-verifier/internal/sampler"
)

// MinimumDuration is the shortest intro, in seconds, a valid payload may carry.
const MinimumDuration = 15

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid intro payload")

// allowedKeys are the only properties a v1 payload may contain.
var allowedKeys = map[string]bool{
	"EpisodeId":        true,
	"Valid":            true,
	"IntroStart":       true,
	"IntroEnd":         true,
	"ShowSkipPromptAt": true,
	"HideSkipPromptAt": true,
}

// IntroV1 is the per-episode response of the v1 API.
type IntroV1 struct {
	EpisodeID        dataset.EpisodeID `json:"EpisodeId"`
	Valid            bool              `json:"Valid"`
	IntroStart       float64           `json:"IntroStart"`
	IntroEnd         float64           `json:"IntroEnd"`
	ShowSkipPromptAt float64           `json:"ShowSkipPromptAt"`
	HideSkipPromptAt float64           `json:"HideSkipPromptAt"`
}

// ValidateV1 checks raw against the v1 contract for episode id. All
// violations are reported together, each wrapping ErrInvalid.
func ValidateV1(id dataset.EpisodeID, raw []byte) error {
	var intro IntroV1
	if err := json.Unmarshal(raw, &intro); err != nil {
		return fmt.Errorf("%w: decoding: %v", ErrInvalid, err)
	}
	var props map[string]json.RawMessage
	if err := json.Unmarshal(raw, &props); err != nil {
		return fmt.Errorf("%w: decoding: %v", ErrInvalid, err)
	}

	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if intro.EpisodeID != id {
		fail("incorrect episode id: expected %q, found %q", id, intro.EpisodeID)
	}
	if intro.IntroStart < 0 || intro.IntroEnd < 0 {
		fail("negative intro start or end time")
	}
	if intro.ShowSkipPromptAt > intro.IntroStart {
		fail("show prompt time %g is after intro start %g", intro.ShowSkipPromptAt, intro.IntroStart)
	}
	if intro.HideSkipPromptAt > intro.IntroEnd {
		fail("hide prompt time %g is after intro end %g", intro.HideSkipPromptAt, intro.IntroEnd)
	}
	if d := intro.IntroEnd - intro.IntroStart; d < MinimumDuration {
		fail("duration %.2f is below the minimum of %d", d, MinimumDuration)
	}
	if !intro.Valid {
		fail("intro is not marked as valid")
	}

	var unknown []string
	for k := range props {
		if !allowedKeys[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		fail("unknown key %q", k)
	}

	return errors.Join(errs...)
}

// ItemResult is the validation outcome of one variant of one episode.
type ItemResult struct {
	EpisodeID dataset.EpisodeID
	Variant   string
	Err       error
}

// Validator fetches and validates episodes across API version variants.
type Validator struct {
	fetcher  sampler.Fetcher
	variants []sampler.Variant
}

// NewValidator returns a Validator checking the default v1 variants.
func NewValidator(f sampler.Fetcher) *Validator {
	return &Validator{fetcher: f, variants: sampler.DefaultVariants}
}

// Validate checks every id under every variant. Fetch errors abort; schema
// violations are recorded per item.
func (v *Validator) Validate(ctx context.Context, ids []dataset.EpisodeID) ([]ItemResult, error) {
	results := make([]ItemResult, 0, len(ids)*len(v.variants))
	for _, id := range ids {
		for _, variant := range v.variants {
			raw, err := v.fetcher.EpisodeTimestamps(ctx, id, variant.Version)
			if err != nil {
				return results, fmt.Errorf("fetching %s for %s: %w", variant.Name, id, err)
			}
			results = append(results, ItemResult{EpisodeID: id, Variant: variant.Name, Err: ValidateV1(id, raw)})
		}
	}
	return results, nil
}

// Failed counts results carrying a violation.
func Failed(results []ItemResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
