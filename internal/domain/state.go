package domain

type PlayerPhase string

const (
	PhaseUninitialized PlayerPhase = "uninitialized"
	PhaseInitializing  PlayerPhase = "initializing"
	PhaseReady         PlayerPhase = "ready"
	PhasePlaying       PlayerPhase = "playing"
	PhasePaused        PlayerPhase = "paused"
	PhaseEnded         PlayerPhase = "ended"
	PhaseError         PlayerPhase = "error"
)

func (p PlayerPhase) IsTerminal() bool {
	return p == PhaseEnded || p == PhaseError
}

func CanTransition(from, to PlayerPhase) bool {
	if from == to {
		return true
	}
	if to == PhaseError {
		return true
	}
	switch from {
	case PhaseUninitialized:
		return to == PhaseInitializing
	case PhaseInitializing:
		return to == PhaseReady
	case PhaseReady:
		return to == PhasePlaying || to == PhasePaused
	case PhasePlaying:
		return to == PhasePaused || to == PhaseEnded
	case PhasePaused:
		return to == PhasePlaying || to == PhaseEnded
	case PhaseEnded:
		// Replay rebuilds the engine from zero.
		return to == PhaseInitializing
	default:
		return false
	}
}

// Quality is one rung of the engine's bitrate ladder.
type Quality struct {
	Index   int `json:"index"`
	Bitrate int `json:"bitrate"`
	Width   int `json:"width,omitempty"`
	Height  int `json:"height,omitempty"`
}

// TextTrack is one selectable subtitle track.
type TextTrack struct {
	Index    int    `json:"index"`
	Language string `json:"language,omitempty"`
	Label    string `json:"label,omitempty"`
}

// PlaybackState is the unified view the controller exposes, regardless of
// whether the local engine or a cast receiver is authoritative.
type PlaybackState struct {
	Phase PlayerPhase `json:"phase"`

	IsPlaying         bool              `json:"isPlaying"`
	CurrentTime       float64           `json:"currentTime"`
	Duration          float64           `json:"duration"`
	Progress          float64           `json:"progress"`
	Buffer            float64           `json:"buffer"`
	IsLoading         bool              `json:"isLoading"`
	IsFinished        bool              `json:"isFinished"`
	Volume            float64           `json:"volume"`
	IsMuted           bool              `json:"isMuted"`
	PlaybackRate      float64           `json:"playbackRate"`
	AudioLanguage     string            `json:"audioLanguage,omitempty"`
	AudioLanguages    map[string]string `json:"audioLanguages,omitempty"`
	SelectedQuality   int               `json:"selectedQuality"` // -1 = automatic
	Qualities         []Quality         `json:"qualities,omitempty"`
	SelectedTextTrack int               `json:"selectedTextTrack"` // -1 = none
	TextTracks        []TextTrack       `json:"textTracks,omitempty"`

	IsCasting      bool   `json:"isCasting"`
	CastDeviceName string `json:"castDeviceName,omitempty"`

	UpNext *UpNextInfo `json:"upNext,omitempty"`

	LastError string `json:"lastError,omitempty"`
}
