package fakeplugin

import "intro-verifier/internal/dataset"

// TaskID identifies a scheduled task.
type TaskID string

// Task states reported by the scheduled task API.
const (
	StateIdle    = "Idle"
	StateRunning = "Running"
)

// Intro is the per-episode object served by the plugin API.
// It matches the v1 wire format exactly.
type Intro struct {
	EpisodeID        dataset.EpisodeID `json:"EpisodeId"`
	Valid            bool              `json:"Valid"`
	IntroStart       float64           `json:"IntroStart"`
	IntroEnd         float64           `json:"IntroEnd"`
	ShowSkipPromptAt float64           `json:"ShowSkipPromptAt"`
	HideSkipPromptAt float64           `json:"HideSkipPromptAt"`
}

// EpisodeState is the in-memory state of one library episode.
type EpisodeState struct {
	ID dataset.EpisodeID

	// Detectable is what an analysis pass will find. A non-positive duration
	// means no intro is found.
	Detectable dataset.IntroInterval

	// Detected is the published result, nil until analysed or after an erase.
	Detected *dataset.IntroInterval
}

// TaskState is the in-memory state of a scheduled task.
type TaskState struct {
	ID       TaskID
	State    string
	Progress float64
}

// TaskInfo is the scheduled task object served by the API.
type TaskInfo struct {
	ID                        TaskID   `json:"Id"`
	Name                      string   `json:"Name"`
	State                     string   `json:"State"`
	CurrentProgressPercentage *float64 `json:"CurrentProgressPercentage,omitempty"`
}

// ServerInfo is served from /System/Info/Public.
type ServerInfo struct {
	ServerName      string `json:"ServerName"`
	Version         string `json:"Version"`
	OperatingSystem string `json:"OperatingSystem"`
	ID              string `json:"Id"`
}

// PluginConfiguration is served from /Plugins/{id}/Configuration.
type PluginConfiguration struct {
	CacheFingerprints    bool   `json:"CacheFingerprints"`
	MaxParallelism       int    `json:"MaxParallelism"`
	SelectedLibraries    string `json:"SelectedLibraries"`
	AnalysisPercent      int    `json:"AnalysisPercent"`
	AnalysisLengthLimit  int    `json:"AnalysisLengthLimit"`
	MinimumIntroDuration int    `json:"MinimumIntroDuration"`
	ShowPromptAdjustment int    `json:"ShowPromptAdjustment"`
	HidePromptAdjustment int    `json:"HidePromptAdjustment"`
}

// DefaultPluginConfiguration mirrors the plugin's shipped defaults.
func DefaultPluginConfiguration() PluginConfiguration {
	return PluginConfiguration{
		CacheFingerprints:    true,
		MaxParallelism:       2,
		AnalysisPercent:      25,
		AnalysisLengthLimit:  10,
		MinimumIntroDuration: 15,
		ShowPromptAdjustment: 5,
		HidePromptAdjustment: 10,
	}
}
