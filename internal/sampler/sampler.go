// Package sampler spot-checks that the per-episode endpoint answers the same
// way across API version selectors.
package sampler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"reflect"
	"strings"
	"time"

	"intro-verifier/internal/dataset"
)

// ErrVariantMismatch is returned in strict mode when variants of the same
// episode disagree.
var ErrVariantMismatch = errors.New("api version variants disagree")

// Fetcher retrieves the raw per-episode payload for a version selector.
type Fetcher interface {
	EpisodeTimestamps(ctx context.Context, id dataset.EpisodeID, version string) ([]byte, error)
}

// Variant names one request shape of the per-episode endpoint.
type Variant struct {
	Name    string
	Version string
}

// DefaultVariants are the implicit (empty version segment) and explicit v1
// request shapes.
var DefaultVariants = []Variant{
	{Name: "v1 (implicit)", Version: ""},
	{Name: "v1 (explicit)", Version: "v1"},
}

// Result is one fetched payload.
type Result struct {
	Key     dataset.EpisodeID
	Variant string
	Payload json.RawMessage
}

// Sampler draws random episodes and fetches every variant for each.
type Sampler struct {
	fetcher  Fetcher
	variants []Variant
	rng      *rand.Rand
	strict   bool
	log      *slog.Logger
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithRand injects the random source used to draw keys.
func WithRand(r *rand.Rand) Option {
	return func(s *Sampler) { s.rng = r }
}

// WithVariants replaces DefaultVariants.
func WithVariants(v ...Variant) Option {
	return func(s *Sampler) { s.variants = v }
}

// WithStrict makes Sample fail when variant payloads differ.
func WithStrict(strict bool) Option {
	return func(s *Sampler) { s.strict = strict }
}

// WithLogger sets the logger payloads are written to.
func WithLogger(log *slog.Logger) Option {
	return func(s *Sampler) { s.log = log }
}

// New returns a Sampler fetching through f.
func New(f Fetcher, opts ...Option) *Sampler {
	s := &Sampler{fetcher: f, variants: DefaultVariants}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		seed := uint64(time.Now().UnixNano())
		s.rng = rand.New(rand.NewPCG(seed, seed>>32))
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	return s
}

// Draw picks min(n, len(keys)) keys uniformly with replacement, so the same
// key may appear more than once.
func (s *Sampler) Draw(keys []dataset.EpisodeID, n int) []dataset.EpisodeID {
	if n <= 0 || len(keys) == 0 {
		return nil
	}
	n = min(n, len(keys))
	out := make([]dataset.EpisodeID, n)
	for i := range out {
		out[i] = keys[s.rng.IntN(len(keys))]
	}
	return out
}

// Sample fetches every variant for each drawn key. Fetch errors abort the
// sample. In strict mode mismatching payloads are reported after all fetches
// complete.
func (s *Sampler) Sample(ctx context.Context, keys []dataset.EpisodeID, n int) ([]Result, error) {
	drawn := s.Draw(keys, n)
	results := make([]Result, 0, len(drawn)*len(s.variants))

	for _, key := range drawn {
		for _, v := range s.variants {
			body, err := s.fetcher.EpisodeTimestamps(ctx, key, v.Version)
			if err != nil {
				return results, fmt.Errorf("fetching %s for %s: %w", v.Name, key, err)
			}
			s.log.Info("version sample",
				slog.String("episode", string(key)),
				slog.String("variant", v.Name),
				slog.String("payload", string(body)))
			results = append(results, Result{Key: key, Variant: v.Name, Payload: body})
		}
	}

	if s.strict {
		if bad := Mismatches(results); len(bad) > 0 {
			ids := make([]string, len(bad))
			for i, k := range bad {
				ids[i] = string(k)
			}
			return results, fmt.Errorf("%w: %s", ErrVariantMismatch, strings.Join(ids, ", "))
		}
	}
	return results, nil
}

// Mismatches returns, in first-seen order, the keys whose variant payloads are
// not structurally equal. Payloads that are not valid JSON are compared
// byte for byte.
func Mismatches(results []Result) []dataset.EpisodeID {
	first := map[dataset.EpisodeID]json.RawMessage{}
	flagged := map[dataset.EpisodeID]bool{}
	var out []dataset.EpisodeID

	for _, r := range results {
		ref, ok := first[r.Key]
		if !ok {
			first[r.Key] = r.Payload
			continue
		}
		if flagged[r.Key] || equalJSON(ref, r.Payload) {
			continue
		}
		flagged[r.Key] = true
		out = append(out, r.Key)
	}
	return out
}

func equalJSON(a, b json.RawMessage) bool {
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return string(a) == string(b)
	}
	return reflect.DeepEqual(va, vb)
}
