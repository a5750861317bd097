package sampler

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"intro-verifier/internal/dataset"
)

type call struct {
	id      dataset.EpisodeID
	version string
}

type fakeFetcher struct {
	calls    []call
	payloads map[string]string
	err      error
}

func (f *fakeFetcher) EpisodeTimestamps(ctx context.Context, id dataset.EpisodeID, version string) ([]byte, error) {
	f.calls = append(f.calls, call{id, version})
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.payloads[string(id)+"/"+version]; ok {
		return []byte(p), nil
	}
	return []byte(`{"EpisodeId":"` + string(id) + `","Valid":true}`), nil
}

func seeded() Option {
	return WithRand(rand.New(rand.NewPCG(1, 2)))
}

func keys(n int) []dataset.EpisodeID {
	out := make([]dataset.EpisodeID, n)
	for i := range out {
		out[i] = dataset.EpisodeID(rune('a' + i))
	}
	return out
}

func TestDraw(t *testing.T) {
	s := New(&fakeFetcher{}, seeded())
	cases := []struct {
		name string
		keys int
		n    int
		want int
	}{
		{"fewer_keys_than_n", 3, 10, 3},
		{"more_keys_than_n", 25, 10, 10},
		{"zero_n", 5, 0, 0},
		{"negative_n", 5, -1, 0},
		{"no_keys", 0, 10, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ks := keys(tc.keys)
			got := s.Draw(ks, tc.n)
			if len(got) != tc.want {
				t.Fatalf("drew %d keys, want %d", len(got), tc.want)
			}
			allowed := map[dataset.EpisodeID]bool{}
			for _, k := range ks {
				allowed[k] = true
			}
			for _, k := range got {
				if !allowed[k] {
					t.Errorf("drew unknown key %q", k)
				}
			}
		})
	}
}

func TestDraw_with_replacement(t *testing.T) {
	s := New(&fakeFetcher{}, seeded())
	single := []dataset.EpisodeID{"only"}
	for i := 0; i < 5; i++ {
		got := s.Draw(single, 10)
		if len(got) != 1 || got[0] != "only" {
			t.Fatalf("unexpected draw %v", got)
		}
	}

	// Two keys drawn twice each many times must eventually repeat a key.
	repeated := false
	two := []dataset.EpisodeID{"a", "b"}
	for i := 0; i < 100 && !repeated; i++ {
		got := s.Draw(two, 2)
		repeated = got[0] == got[1]
	}
	if !repeated {
		t.Error("expected sampling with replacement to repeat a key")
	}
}

func TestSample_fetches_every_variant(t *testing.T) {
	f := &fakeFetcher{}
	s := New(f, seeded())

	results, err := s.Sample(context.Background(), keys(3), 10)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(results) != 6 || len(f.calls) != 6 {
		t.Fatalf("expected 6 results and calls, got %d and %d", len(results), len(f.calls))
	}
	for i := 0; i < len(f.calls); i += 2 {
		if f.calls[i].version != "" || f.calls[i+1].version != "v1" {
			t.Errorf("calls %d,%d used versions %q,%q", i, i+1, f.calls[i].version, f.calls[i+1].version)
		}
		if f.calls[i].id != f.calls[i+1].id {
			t.Errorf("variants of one draw hit different episodes")
		}
	}
	if results[0].Variant != "v1 (implicit)" || results[1].Variant != "v1 (explicit)" {
		t.Errorf("unexpected variant names %q, %q", results[0].Variant, results[1].Variant)
	}
}

func TestSample_fetch_error(t *testing.T) {
	boom := errors.New("boom")
	s := New(&fakeFetcher{err: boom}, seeded())

	if _, err := s.Sample(context.Background(), keys(2), 1); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestSample_strict(t *testing.T) {
	t.Run("mismatch_fails", func(t *testing.T) {
		f := &fakeFetcher{payloads: map[string]string{
			"a/":   `{"EpisodeId":"a","IntroStart":1}`,
			"a/v1": `{"EpisodeId":"a","IntroStart":2}`,
		}}
		s := New(f, seeded(), WithStrict(true))

		_, err := s.Sample(context.Background(), []dataset.EpisodeID{"a"}, 1)
		if !errors.Is(err, ErrVariantMismatch) {
			t.Fatalf("expected ErrVariantMismatch, got %v", err)
		}
	})

	t.Run("key_order_is_ignored", func(t *testing.T) {
		f := &fakeFetcher{payloads: map[string]string{
			"a/":   `{"EpisodeId":"a","IntroStart":1}`,
			"a/v1": `{"IntroStart":1, "EpisodeId":"a"}`,
		}}
		s := New(f, seeded(), WithStrict(true))

		if _, err := s.Sample(context.Background(), []dataset.EpisodeID{"a"}, 1); err != nil {
			t.Fatalf("expected structurally equal payloads to pass, got %v", err)
		}
	})

	t.Run("logging_only_by_default", func(t *testing.T) {
		f := &fakeFetcher{payloads: map[string]string{
			"a/":   `{"IntroStart":1}`,
			"a/v1": `{"IntroStart":2}`,
		}}
		s := New(f, seeded())

		if _, err := s.Sample(context.Background(), []dataset.EpisodeID{"a"}, 1); err != nil {
			t.Fatalf("non-strict sampler must not fail on mismatch: %v", err)
		}
	})
}

func TestMismatches_reports_key_once(t *testing.T) {
	results := []Result{
		{Key: "a", Payload: []byte(`1`)},
		{Key: "a", Payload: []byte(`2`)},
		{Key: "a", Payload: []byte(`3`)},
		{Key: "b", Payload: []byte(`not json`)},
		{Key: "b", Payload: []byte(`not json`)},
	}
	got := Mismatches(results)
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("Mismatches = %v, want [a]", got)
	}
}
