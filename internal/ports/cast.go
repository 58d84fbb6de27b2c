package ports

import "context"

// CastPlatform is the injected capability for second-screen playback.
// A nil platform means the host has no cast support; every cast operation
// is then unavailable rather than failing.
type CastPlatform interface {
	// Devices lists the currently reachable receivers.
	Devices(ctx context.Context) ([]CastDevice, error)
	// Connect opens a session on a receiver.
	Connect(ctx context.Context, deviceID string) (CastSession, error)
}

type CastDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CastSession mirrors the subset of playback operations the default media
// receiver supports. Playback rate and quality/track selection are absent:
// the receiver cannot do them, so the controller treats such requests as
// no-ops while casting.
type CastSession interface {
	Load(ctx context.Context, mediaURL, title string, startTime float64, autoplay bool) error
	PlayOrPause(ctx context.Context) error
	SeekTo(ctx context.Context, seconds float64) error
	SetVolume(ctx context.Context, v float64) error
	SetMuted(ctx context.Context, muted bool) error

	DeviceName() string

	// Events delivers receiver state changes. The channel closes once the
	// session has ended.
	Events() <-chan CastEvent

	// Close tears the session down. Idempotent.
	Close() error
}

type CastEventKind string

const (
	CastTimeUpdate CastEventKind = "time-update"
	CastPlaying    CastEventKind = "playing"
	CastPaused     CastEventKind = "paused"
	CastEnded      CastEventKind = "session-ended"
	CastFailed     CastEventKind = "error"
)

type CastEvent struct {
	Kind     CastEventKind
	Position float64
	Err      error
}

// CastError covers remote load/session failures. On any of them authority
// reverts to the local engine and the casting UI state clears.
type CastError struct {
	Op  string
	Err error
}

func (e *CastError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return "cast " + e.Op + " failed"
	}
	return "cast " + e.Op + ": " + e.Err.Error()
}

func (e *CastError) Unwrap() error { return e.Err }
