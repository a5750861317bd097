// Package dataset holds the intro timestamp datasets a verification run works
// with: the trusted expected file and the actual results served by the plugin.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// EpisodeID is the media server's opaque item identifier.
type EpisodeID string

// IntroInterval is the introduction window of one episode, in seconds.
// Start <= End is expected but not enforced.
type IntroInterval struct {
	Start float64 `json:"IntroStart"`
	End   float64 `json:"IntroEnd"`
}

// Duration returns End - Start. It is negative for inverted intervals.
func (i IntroInterval) Duration() float64 {
	return i.End - i.Start
}

func (i IntroInterval) String() string {
	return fmt.Sprintf("%g => %g", i.Start, i.End)
}

// Dataset maps episodes to their intro interval.
type Dataset map[EpisodeID]IntroInterval

// Keys returns the episode ids sorted ascending.
func (d Dataset) Keys() []EpisodeID {
	keys := make([]EpisodeID, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ErrEmptyPath is returned by LoadExpected when no file was configured.
var ErrEmptyPath = errors.New("expected dataset path is empty")

// LoadExpected reads the ground-truth file: a JSON object mapping episode ids
// to {IntroStart, IntroEnd}, as previously retrieved from /Intros/All.
func LoadExpected(path string) (Dataset, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading expected dataset: %w", err)
	}
	ds, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing expected dataset %s: %w", path, err)
	}
	return ds, nil
}

// intro is the per-episode object served by the plugin. Only the fields the
// harness needs are decoded.
type intro struct {
	EpisodeID  EpisodeID `json:"EpisodeId"`
	IntroStart float64   `json:"IntroStart"`
	IntroEnd   float64   `json:"IntroEnd"`
}

// Parse decodes a dataset from either an object keyed by episode id or an
// array of intro objects carrying EpisodeId. Both shapes have been served by
// /Intros/All across plugin releases.
func Parse(raw []byte) (Dataset, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}

	switch trimmed[0] {
	case '{':
		var byID map[EpisodeID]intro
		if err := json.Unmarshal(trimmed, &byID); err != nil {
			return nil, err
		}
		ds := make(Dataset, len(byID))
		for id, in := range byID {
			ds[id] = IntroInterval{Start: in.IntroStart, End: in.IntroEnd}
		}
		return ds, nil

	case '[':
		var list []intro
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		ds := make(Dataset, len(list))
		for n, in := range list {
			if in.EpisodeID == "" {
				return nil, fmt.Errorf("intro at index %d has no EpisodeId", n)
			}
			ds[in.EpisodeID] = IntroInterval{Start: in.IntroStart, End: in.IntroEnd}
		}
		return ds, nil

	default:
		return nil, fmt.Errorf("expected a JSON object or array, found %q", trimmed[0])
	}
}

// WriteDump stores a raw response body verbatim for post-run inspection.
func WriteDump(path string, body []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating dump directory: %w", err)
		}
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("writing dump: %w", err)
	}
	return nil
}
