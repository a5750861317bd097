package fakeplugin

import (
	"errors"

	"intro-verifier/internal/dataset"
)

// DefaultSteps is the number of status queries a task takes to finish.
const DefaultSteps = 4

// DetectIntroductionsName is the display name of the analysis task.
const DetectIntroductionsName = "Detect Introductions"

var (
	// ErrUnsupportedVersion is returned for API version selectors other than
	// the implicit default and "v1".
	ErrUnsupportedVersion = errors.New("unsupported api version")

	// ErrNoIntro is returned when an episode has no published intro.
	ErrNoIntro = errors.New("no intro detected for episode")
)

// Service applies the plugin's behaviour (task progression, prompt timings)
// and delegates storage to Repository.
type Service struct {
	repo   Repository
	step   float64
	info   ServerInfo
	config PluginConfiguration
}

// NewService returns a Service whose tasks finish after steps status queries.
// If steps <= 0, DefaultSteps is used.
func NewService(repo Repository, steps int, info ServerInfo, cfg PluginConfiguration) *Service {
	if steps <= 0 {
		steps = DefaultSteps
	}
	return &Service{repo: repo, step: 100 / float64(steps), info: info, config: cfg}
}

// Seed loads a library: every episode will detect the given interval.
func (s *Service) Seed(ds dataset.Dataset) {
	for id, in := range ds {
		s.repo.SeedEpisode(id, in)
	}
}

// EraseTimestamps clears every published intro.
func (s *Service) EraseTimestamps() {
	s.repo.EraseTimestamps()
}

// StartTask queues a scheduled task.
func (s *Service) StartTask(id TaskID) error {
	return s.repo.StartTask(id)
}

// TaskStatus reports a task and advances it by one step if it is running.
func (s *Service) TaskStatus(id TaskID) (TaskInfo, error) {
	st, err := s.repo.AdvanceTask(id, s.step)
	if err != nil {
		return TaskInfo{}, err
	}
	info := TaskInfo{ID: st.ID, Name: DetectIntroductionsName, State: st.State}
	if st.State == StateRunning {
		p := st.Progress
		info.CurrentProgressPercentage = &p
	}
	return info, nil
}

// AllIntros returns every published intro keyed by episode id.
func (s *Service) AllIntros() map[dataset.EpisodeID]Intro {
	detected := s.repo.Detected()
	out := make(map[dataset.EpisodeID]Intro, len(detected))
	for id, in := range detected {
		out[id] = s.buildIntro(id, in)
	}
	return out
}

// EpisodeIntro returns the intro of one episode for an API version. The empty
// version selects v1.
func (s *Service) EpisodeIntro(id dataset.EpisodeID, version string) (Intro, error) {
	if version != "" && version != "v1" {
		return Intro{}, ErrUnsupportedVersion
	}
	ep, ok := s.repo.Episode(id)
	if !ok {
		return Intro{}, ErrEpisodeNotFound
	}
	if ep.Detected == nil {
		return Intro{}, ErrNoIntro
	}
	return s.buildIntro(id, *ep.Detected), nil
}

// ServerInfo returns the public server information.
func (s *Service) ServerInfo() ServerInfo {
	return s.info
}

// Configuration returns the plugin configuration.
func (s *Service) Configuration() PluginConfiguration {
	return s.config
}

// buildIntro derives the skip prompt window: shown ShowPromptAdjustment
// seconds before the intro and hidden HidePromptAdjustment seconds after it
// starts, never past its end.
func (s *Service) buildIntro(id dataset.EpisodeID, in dataset.IntroInterval) Intro {
	show := max(0, in.Start-float64(s.config.ShowPromptAdjustment))
	hide := min(in.Start+float64(s.config.HidePromptAdjustment), in.End)
	return Intro{
		EpisodeID:        id,
		Valid:            in.Duration() > 0,
		IntroStart:       in.Start,
		IntroEnd:         in.End,
		ShowSkipPromptAt: show,
		HideSkipPromptAt: hide,
	}
}
