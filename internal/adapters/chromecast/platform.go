// Package chromecast implements the cast capability on top of the
// go-chromecast library: mDNS receiver discovery plus default-media-receiver
// session control. The rest of the system only sees the ports contracts, so
// hosts without cast support simply run with a nil platform.
package chromecast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vishen/go-chromecast/application"
	castdns "github.com/vishen/go-chromecast/dns"

	"github.com/tokonoko12/playdeck/internal/ports"
)

const (
	discoveryTimeout = 3 * time.Second
	pollInterval     = time.Second

	manifestContentType = "application/dash+xml"
)

type Platform struct {
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]castdns.CastEntry
}

func New(logger zerolog.Logger) *Platform {
	return &Platform{
		logger:  logger.With().Str("component", "chromecast").Logger(),
		entries: make(map[string]castdns.CastEntry),
	}
}

var _ ports.CastPlatform = (*Platform)(nil)

func (p *Platform) Devices(ctx context.Context) ([]ports.CastDevice, error) {
	dctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	ch, err := castdns.DiscoverCastDNSEntries(dctx, nil)
	if err != nil {
		return nil, &ports.CastError{Op: "discover", Err: err}
	}

	var out []ports.CastDevice
	seen := map[string]bool{}
	for entry := range ch {
		id := entry.UUID
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		p.mu.Lock()
		p.entries[id] = entry
		p.mu.Unlock()
		out = append(out, ports.CastDevice{ID: id, Name: entry.DeviceName})
	}
	return out, nil
}

func (p *Platform) Connect(ctx context.Context, deviceID string) (ports.CastSession, error) {
	p.mu.Lock()
	entry, ok := p.entries[deviceID]
	p.mu.Unlock()
	if !ok {
		// The caller may connect straight from a stale device list.
		if _, err := p.Devices(ctx); err != nil {
			return nil, err
		}
		p.mu.Lock()
		entry, ok = p.entries[deviceID]
		p.mu.Unlock()
		if !ok {
			return nil, &ports.CastError{Op: "connect", Err: fmt.Errorf("unknown device %q", deviceID)}
		}
	}

	app := application.NewApplication()
	if err := app.Start(entry.AddrV4.String(), int(entry.Port)); err != nil {
		return nil, &ports.CastError{Op: "connect", Err: err}
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		logger:     p.logger.With().Str("device", entry.DeviceName).Logger(),
		app:        app,
		deviceName: entry.DeviceName,
		events:     make(chan ports.CastEvent, 64),
		cancel:     cancel,
	}
	go s.monitor(monitorCtx)
	return s, nil
}

// Session controls one receiver. Receiver state is polled: the default
// media receiver pushes no events over this transport, so the monitor loop
// derives playing/paused/ended transitions from periodic status reads.
type Session struct {
	logger     zerolog.Logger
	app        *application.Application
	deviceName string

	events chan ports.CastEvent
	cancel context.CancelFunc

	mu      sync.Mutex
	playing bool

	closeOnce sync.Once
}

var _ ports.CastSession = (*Session)(nil)

func (s *Session) DeviceName() string             { return s.deviceName }
func (s *Session) Events() <-chan ports.CastEvent { return s.events }

func (s *Session) Load(ctx context.Context, mediaURL, title string, startTime float64, autoplay bool) error {
	_ = title // the default receiver takes metadata from the stream itself
	if err := s.app.Load(mediaURL, int(startTime), manifestContentType, false, true, false); err != nil {
		return &ports.CastError{Op: "load", Err: err}
	}
	if !autoplay {
		if err := s.app.Pause(); err != nil {
			return &ports.CastError{Op: "pause", Err: err}
		}
	}
	return nil
}

func (s *Session) PlayOrPause(ctx context.Context) error {
	s.mu.Lock()
	playing := s.playing
	s.mu.Unlock()
	var err error
	if playing {
		err = s.app.Pause()
	} else {
		err = s.app.Unpause()
	}
	if err != nil {
		return &ports.CastError{Op: "play-pause", Err: err}
	}
	return nil
}

func (s *Session) SeekTo(ctx context.Context, seconds float64) error {
	if err := s.app.SeekToTime(float32(seconds)); err != nil {
		return &ports.CastError{Op: "seek", Err: err}
	}
	return nil
}

func (s *Session) SetVolume(ctx context.Context, v float64) error {
	if err := s.app.SetVolume(float32(v)); err != nil {
		return &ports.CastError{Op: "volume", Err: err}
	}
	return nil
}

func (s *Session) SetMuted(ctx context.Context, muted bool) error {
	if err := s.app.SetMuted(muted); err != nil {
		return &ports.CastError{Op: "mute", Err: err}
	}
	return nil
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		if err := s.app.Close(true); err != nil {
			s.logger.Warn().Err(err).Msg("receiver close failed")
		}
		close(s.events)
	})
	return nil
}

func (s *Session) monitor(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := s.app.Update(); err != nil {
			failures++
			if failures >= 3 {
				s.emit(ports.CastEvent{Kind: ports.CastFailed, Err: err})
				return
			}
			continue
		}
		failures = 0

		_, media, _ := s.app.Status()
		if media == nil {
			continue
		}

		pos := float64(media.CurrentTime)
		s.emit(ports.CastEvent{Kind: ports.CastTimeUpdate, Position: pos})

		switch media.PlayerState {
		case "PLAYING", "BUFFERING":
			s.setPlaying(true, pos)
		case "PAUSED":
			s.setPlaying(false, pos)
		case "IDLE":
			if media.IdleReason == "FINISHED" || media.IdleReason == "CANCELLED" {
				s.emit(ports.CastEvent{Kind: ports.CastEnded, Position: pos})
				return
			}
		}
	}
}

func (s *Session) setPlaying(playing bool, pos float64) {
	s.mu.Lock()
	changed := s.playing != playing
	s.playing = playing
	s.mu.Unlock()
	if !changed {
		return
	}
	kind := ports.CastPaused
	if playing {
		kind = ports.CastPlaying
	}
	s.emit(ports.CastEvent{Kind: kind, Position: pos})
}

// emit survives the events channel closing mid-poll.
func (s *Session) emit(ev ports.CastEvent) {
	defer func() { _ = recover() }()
	select {
	case s.events <- ev:
	default:
	}
}
