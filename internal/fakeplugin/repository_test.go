package fakeplugin

import (
	"errors"
	"sync"
	"testing"

	"intro-verifier/internal/dataset"
)

func TestInMemoryRepository_task_lifecycle(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.RegisterTask("t1")
	repo.SeedEpisode("e1", dataset.IntroInterval{Start: 10, End: 40})
	repo.SeedEpisode("e2", dataset.IntroInterval{})

	t.Run("idle_task_does_not_advance", func(t *testing.T) {
		st, err := repo.AdvanceTask("t1", 50)
		if err != nil {
			t.Fatal(err)
		}
		if st.State != StateIdle || st.Progress != 0 {
			t.Errorf("unexpected state %+v", st)
		}
	})

	if err := repo.StartTask("t1"); err != nil {
		t.Fatalf("StartTask: %v", err)
	}

	t.Run("running_advances", func(t *testing.T) {
		st, _ := repo.AdvanceTask("t1", 50)
		if st.State != StateRunning || st.Progress != 50 {
			t.Errorf("unexpected state %+v", st)
		}
		if len(repo.Detected()) != 0 {
			t.Error("nothing should be published before completion")
		}
	})

	t.Run("completion_publishes_detectable_intros", func(t *testing.T) {
		st, _ := repo.AdvanceTask("t1", 50)
		if st.State != StateIdle {
			t.Errorf("expected Idle after reaching 100, got %+v", st)
		}
		got := repo.Detected()
		if len(got) != 1 || got["e1"] != (dataset.IntroInterval{Start: 10, End: 40}) {
			t.Errorf("Detected = %v", got)
		}
	})

	t.Run("erase_clears_published", func(t *testing.T) {
		repo.EraseTimestamps()
		if len(repo.Detected()) != 0 {
			t.Error("expected no detections after erase")
		}
		ep, ok := repo.Episode("e1")
		if !ok || ep.Detected != nil {
			t.Errorf("episode after erase: ok=%v %+v", ok, ep)
		}
	})
}

func TestInMemoryRepository_unknown_task(t *testing.T) {
	repo := NewInMemoryRepository()

	if err := repo.StartTask("missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("StartTask: expected ErrTaskNotFound, got %v", err)
	}
	if _, err := repo.AdvanceTask("missing", 10); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("AdvanceTask: expected ErrTaskNotFound, got %v", err)
	}
}

func TestInMemoryRepository_start_running_task_is_noop(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.RegisterTask("t1")
	_ = repo.StartTask("t1")
	_, _ = repo.AdvanceTask("t1", 30)

	if err := repo.StartTask("t1"); err != nil {
		t.Fatal(err)
	}
	st, _ := repo.AdvanceTask("t1", 0)
	if st.Progress != 30 {
		t.Errorf("restart should not reset progress, got %v", st.Progress)
	}
}

func TestInMemoryRepository_Episode_returns_copy(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.RegisterTask("t1")
	repo.SeedEpisode("e1", dataset.IntroInterval{Start: 1, End: 20})
	_ = repo.StartTask("t1")
	_, _ = repo.AdvanceTask("t1", 100)

	ep, _ := repo.Episode("e1")
	ep.Detected.Start = 99

	again, _ := repo.Episode("e1")
	if again.Detected.Start != 1 {
		t.Error("Episode leaked internal state")
	}
}

func TestInMemoryRepository_concurrent_access(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.RegisterTask("t1")
	_ = repo.StartTask("t1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			repo.SeedEpisode(dataset.EpisodeID(rune('a'+i)), dataset.IntroInterval{Start: 0, End: 20})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = repo.AdvanceTask("t1", 1)
			_ = repo.Detected()
		}()
	}
	wg.Wait()
}
