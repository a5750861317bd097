package fakeplugin

import "intro-verifier/internal/dataset"

// Store is the persistence abstraction for episode and task state.
// The Repository uses Store for all reads and writes and serialises access.
type Store interface {
	GetEpisode(id dataset.EpisodeID) (*EpisodeState, bool)
	SetEpisode(e *EpisodeState)
	ListEpisodeIDs() []dataset.EpisodeID
	GetTask(id TaskID) (*TaskState, bool)
	SetTask(t *TaskState)
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	episodes map[dataset.EpisodeID]*EpisodeState
	tasks    map[TaskID]*TaskState
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		episodes: make(map[dataset.EpisodeID]*EpisodeState),
		tasks:    make(map[TaskID]*TaskState),
	}
}

// GetEpisode implements Store.GetEpisode.
func (s *InMemoryStore) GetEpisode(id dataset.EpisodeID) (*EpisodeState, bool) {
	e, ok := s.episodes[id]
	return e, ok
}

// SetEpisode implements Store.SetEpisode.
func (s *InMemoryStore) SetEpisode(e *EpisodeState) {
	s.episodes[e.ID] = e
}

// ListEpisodeIDs implements Store.ListEpisodeIDs.
func (s *InMemoryStore) ListEpisodeIDs() []dataset.EpisodeID {
	ids := make([]dataset.EpisodeID, 0, len(s.episodes))
	for id := range s.episodes {
		ids = append(ids, id)
	}
	return ids
}

// GetTask implements Store.GetTask.
func (s *InMemoryStore) GetTask(id TaskID) (*TaskState, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

// SetTask implements Store.SetTask.
func (s *InMemoryStore) SetTask(t *TaskState) {
	s.tasks[t.ID] = t
}
