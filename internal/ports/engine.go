package ports

import (
	"context"
	"fmt"

	"github.com/tokonoko12/playdeck/internal/domain"
)

// Engine is one instance of the external adaptive-streaming engine, bound
// to exactly one concrete manifest URL for its whole lifetime. Changing the
// manifest, the audio language, or the play position discontinuously means
// destroying the instance and creating a new one — never reconfiguring it.
type Engine interface {
	Play() error
	Pause() error
	// SeekLocal moves within the current instance, relative to the URL the
	// instance was created with. Only used for continuous scrubbing; a seek
	// commit goes through re-instantiation.
	SeekLocal(seconds float64) error
	SetVolume(v float64) error
	SetMuted(muted bool) error
	SetPlaybackRate(rate float64) error
	// SetQualityIndex selects a rung of the ladder; -1 re-enables automatic
	// bitrate switching.
	SetQualityIndex(index int) error
	// SetTextTrack selects a subtitle track; -1 disables text rendering.
	SetTextTrack(index int) error

	// Events delivers engine events in emission order. The channel closes
	// after Destroy.
	Events() <-chan EngineEvent

	// Destroy releases the instance. Idempotent; safe to call twice.
	Destroy() error
}

// EngineFactory creates engine instances. autoplay starts buffering and
// playback immediately, matching the session controller's expectations.
type EngineFactory interface {
	New(ctx context.Context, manifestURL string, autoplay bool) (Engine, error)
}

type EngineEventKind string

const (
	EngineStarted           EngineEventKind = "started"
	EnginePaused            EngineEventKind = "paused"
	EngineStreamInitialized EngineEventKind = "stream-initialized"
	EngineMetadataLoaded    EngineEventKind = "metadata-loaded"
	EngineTimeUpdate        EngineEventKind = "time-update"
	EngineBufferUpdate      EngineEventKind = "buffer-update"
	EngineWaiting           EngineEventKind = "waiting"
	EnginePlaying           EngineEventKind = "playing"
	EngineQualityChanged    EngineEventKind = "quality-changed"
	EngineEnded             EngineEventKind = "ended"
	EngineFailed            EngineEventKind = "error"
)

// EngineEvent is the tagged union every engine implementation emits.
// Position and Buffered are relative to the instance's own start; the
// controller translates them through its base offset.
type EngineEvent struct {
	Kind EngineEventKind

	Position float64
	Buffered float64
	Duration float64

	Qualities  []domain.Quality
	TextTracks []domain.TextTrack

	QualityIndex int

	Err *EngineError
}

// EngineError carries the engine's error code so known-transient codes can
// be filtered before anything reaches the user.
type EngineError struct {
	Code    int
	Message string
}

func (e *EngineError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s (code: %d)", e.Message, e.Code)
}
