package fakeplugin

import (
	"errors"
	"sync"

	"intro-verifier/internal/dataset"
)

// Repository defines the concurrency-safe contract for accessing and mutating
// the fake plugin's library and task state.
type Repository interface {
	// SeedEpisode adds an episode whose analysis will detect the given
	// interval. Seeding an existing episode replaces what it will detect but
	// keeps its published result.
	SeedEpisode(id dataset.EpisodeID, detectable dataset.IntroInterval)

	// RegisterTask makes a scheduled task known. Registering twice is a no-op.
	RegisterTask(id TaskID)

	// EraseTimestamps clears every published result.
	EraseTimestamps()

	// StartTask moves a task to Running at 0%. Starting a running task is a
	// no-op.
	StartTask(id TaskID) error

	// AdvanceTask adds step percent to a running task and returns the new
	// state. Reaching 100% publishes detections and returns the task to Idle.
	AdvanceTask(id TaskID, step float64) (TaskState, error)

	// Detected returns every published intro.
	Detected() dataset.Dataset

	// Episode returns a copy of one episode's state.
	Episode(id dataset.EpisodeID) (EpisodeState, bool)
}

var (
	// ErrTaskNotFound is returned for operations on an unregistered task.
	ErrTaskNotFound = errors.New("task not found")

	// ErrEpisodeNotFound is returned when an episode is not in the library.
	ErrEpisodeNotFound = errors.New("episode not found")
)

// InMemoryRepository is a concurrency-safe in-memory implementation of Repository.
// It uses a Store for persistence; by default that is an InMemoryStore.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

// SeedEpisode implements Repository.SeedEpisode.
func (r *InMemoryRepository) SeedEpisode(id dataset.EpisodeID, detectable dataset.IntroInterval) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ep, ok := r.store.GetEpisode(id); ok {
		ep.Detectable = detectable
		return
	}
	r.store.SetEpisode(&EpisodeState{ID: id, Detectable: detectable})
}

// RegisterTask implements Repository.RegisterTask.
func (r *InMemoryRepository) RegisterTask(id TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.store.GetTask(id); ok {
		return
	}
	r.store.SetTask(&TaskState{ID: id, State: StateIdle})
}

// EraseTimestamps implements Repository.EraseTimestamps.
func (r *InMemoryRepository) EraseTimestamps() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.store.ListEpisodeIDs() {
		if ep, ok := r.store.GetEpisode(id); ok {
			ep.Detected = nil
		}
	}
}

// StartTask implements Repository.StartTask.
func (r *InMemoryRepository) StartTask(id TaskID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.store.GetTask(id)
	if !ok {
		return ErrTaskNotFound
	}
	if task.State == StateRunning {
		return nil
	}
	task.State = StateRunning
	task.Progress = 0
	return nil
}

// AdvanceTask implements Repository.AdvanceTask.
func (r *InMemoryRepository) AdvanceTask(id TaskID, step float64) (TaskState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.store.GetTask(id)
	if !ok {
		return TaskState{}, ErrTaskNotFound
	}
	if task.State != StateRunning {
		return *task, nil
	}

	task.Progress += step
	if task.Progress < 100 {
		return *task, nil
	}

	r.publishLocked()
	task.State = StateIdle
	task.Progress = 0
	return *task, nil
}

// Detected implements Repository.Detected.
func (r *InMemoryRepository) Detected() dataset.Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(dataset.Dataset)
	for _, id := range r.store.ListEpisodeIDs() {
		if ep, ok := r.store.GetEpisode(id); ok && ep.Detected != nil {
			out[id] = *ep.Detected
		}
	}
	return out
}

// Episode implements Repository.Episode.
func (r *InMemoryRepository) Episode(id dataset.EpisodeID) (EpisodeState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.store.GetEpisode(id)
	if !ok {
		return EpisodeState{}, false
	}
	out := *ep
	if ep.Detected != nil {
		d := *ep.Detected
		out.Detected = &d
	}
	return out, true
}

// publishLocked copies every detectable intro into the published results.
// Caller must hold r.mu in write mode.
func (r *InMemoryRepository) publishLocked() {
	for _, id := range r.store.ListEpisodeIDs() {
		ep, ok := r.store.GetEpisode(id)
		if !ok || ep.Detectable.Duration() <= 0 {
			continue
		}
		d := ep.Detectable
		ep.Detected = &d
	}
}
