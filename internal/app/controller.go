package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tokonoko12/playdeck/internal/domain"
	"github.com/tokonoko12/playdeck/internal/ports"
)

const (
	// progressSaveInterval is the periodic persistence tick while playing.
	progressSaveInterval = 15 * time.Second

	// resumeMinSeconds: stored positions at or below this never resume.
	resumeMinSeconds = 5.0

	// suppressSaveSeconds: positions at or below this are not worth a
	// record unless the content finished (accidental opens).
	suppressSaveSeconds = 5.0

	// finishToleranceSeconds: a position this close to the duration counts
	// as completion, both for the ended signal and for normalizing records.
	finishToleranceSeconds = 10.0

	// skipSeconds is the fixed skip-forward/back step.
	skipSeconds = 10.0

	// manifestRefreshErrorCode is raised transiently by the engine while a
	// seek re-requests the manifest at a new offset. Expected noise from
	// the re-instantiation strategy, never surfaced.
	manifestRefreshErrorCode = 6001

	// resolveTimeout bounds each resolver call so a session cannot sit in
	// "loading" forever. Strengthening over the original behavior.
	resolveTimeout = 10 * time.Second

	saveFlushTimeout = 3 * time.Second
)

// AvailablePlaybackRates is the rate menu offered by the presentation layer.
var AvailablePlaybackRates = []float64{0.5, 1, 1.25, 1.5, 2}

func validPlaybackRate(rate float64) bool {
	for _, r := range AvailablePlaybackRates {
		if r == rate {
			return true
		}
	}
	return false
}

var ErrCastUnavailable = errors.New("casting is not available on this host")

// Controller owns one playback session end to end: the engine instance
// lifecycle, the authoritative current time, the local/remote authority
// handoff and the progress persistence protocol.
//
// Exactly one of {local engine, cast session} drives PlaybackState at any
// instant. Engine events are tagged with a generation so nothing from a
// destroyed instance can leak into its successor.
type Controller struct {
	id     string
	target domain.PlaybackTarget
	logger zerolog.Logger

	resolver ports.StreamResolver
	progress ports.ProgressRepository
	engines  ports.EngineFactory
	cast     ports.CastPlatform
	bus      ports.EventBus
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu sync.Mutex

	st          domain.PlaybackState
	urlTemplate string
	audioLang   string

	// baseOffset is the absolute position at which the live engine
	// instance began; engine-reported time is relative to it.
	baseOffset float64

	engine    ports.Engine
	engineGen int

	castSession ports.CastSession
	castGen     int

	scrubbing  bool
	lastVolume float64

	saveCancel context.CancelFunc

	nextEpisode *domain.EpisodeRef
	upNext      *domain.UpNextInfo

	closed bool
}

// ControllerDeps carries everything a session controller composes. Cast and
// Bus are optional; Now defaults to time.Now.
type ControllerDeps struct {
	Logger   zerolog.Logger
	Resolver ports.StreamResolver
	Progress ports.ProgressRepository
	Engines  ports.EngineFactory
	Cast     ports.CastPlatform
	Bus      ports.EventBus
	Now      func() time.Time
}

func NewController(id string, target domain.PlaybackTarget, deps ControllerDeps) *Controller {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		id:       id,
		target:   target,
		logger:   deps.Logger.With().Str("session_id", id).Str("target", target.Key()).Logger(),
		resolver: deps.Resolver,
		progress: deps.Progress,
		engines:  deps.Engines,
		cast:     deps.Cast,
		bus:      deps.Bus,
		now:      now,
		ctx:      ctx,
		cancel:   cancel,
		st: domain.PlaybackState{
			Phase:             domain.PhaseUninitialized,
			IsLoading:         true,
			Volume:            1,
			PlaybackRate:      1,
			SelectedQuality:   -1,
			SelectedTextTrack: -1,
		},
		lastVolume: 1,
	}
}

func (c *Controller) ID() string                    { return c.id }
func (c *Controller) Target() domain.PlaybackTarget { return c.target }

// State returns a copy of the unified playback state.
func (c *Controller) State() domain.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// Start runs the initialization protocol: resume lookup, source selection,
// manifest resolution and the first engine instance. A response arriving
// after Close is discarded without touching state.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("session closed")
	}
	c.setPhaseLocked(domain.PhaseInitializing)
	c.mu.Unlock()

	offset := c.initialOffset(ctx)

	stream, err := c.resolveStream(ctx)
	if err != nil {
		c.failInit(err)
		return err
	}

	lang := defaultAudioLanguage(stream.AudioLanguages)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		// The user navigated away while we were resolving.
		return errors.New("session closed")
	}
	c.urlTemplate = stream.ManifestURLTemplate
	c.audioLang = lang
	c.st.AudioLanguage = lang
	c.st.AudioLanguages = stream.AudioLanguages
	if stream.DurationSeconds > 0 {
		// The resolver's duration is authoritative; engine metadata is
		// only a fallback when this is absent.
		c.st.Duration = stream.DurationSeconds
	}
	c.st.CurrentTime = offset
	if err := c.startEngineLocked(offset); err != nil {
		c.st.LastError = err.Error()
		c.st.IsLoading = false
		c.setPhaseLocked(domain.PhaseError)
		c.publishLocked("session.error")
		return err
	}
	c.publishLocked("session.state")
	return nil
}

func (c *Controller) initialOffset(ctx context.Context) float64 {
	rec, err := c.progress.Get(ctx, c.target.Key())
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			c.logger.Warn().Err(err).Msg("progress lookup failed")
		}
		return 0
	}
	// A finished record means "watch again": start from the beginning no
	// matter what position it stored.
	if rec.IsFinished {
		return 0
	}
	if rec.CurrentTime > resumeMinSeconds {
		return rec.CurrentTime
	}
	return 0
}

func (c *Controller) resolveStream(ctx context.Context) (domain.ResolvedStream, error) {
	if c.target.InitialSource != nil {
		rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
		defer cancel()
		return c.resolver.ResolvePlayable(rctx, *c.target.InitialSource)
	}

	lctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	candidates, err := c.resolver.ListCandidates(lctx, c.target)
	cancel()
	if err != nil {
		return domain.ResolvedStream{}, err
	}
	src, ok := domain.DefaultSource(candidates)
	if !ok {
		return domain.ResolvedStream{}, &ports.ResolutionError{Reason: "no streams found for this content"}
	}

	rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()
	return c.resolver.ResolvePlayable(rctx, src)
}

// defaultAudioLanguage prefers "en", then lexicographically first: Go maps
// have no response order to fall back on, so the pick must be deterministic.
func defaultAudioLanguage(langs map[string]string) string {
	if len(langs) == 0 {
		return "en"
	}
	if _, ok := langs["en"]; ok {
		return "en"
	}
	keys := make([]string, 0, len(langs))
	for k := range langs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}

func (c *Controller) failInit(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.st.LastError = err.Error()
	c.st.IsLoading = false
	c.setPhaseLocked(domain.PhaseError)
	c.publishLocked("session.error")
}

// startEngineLocked destroys the live instance, if any, and creates a new
// one bound to the manifest at the given absolute offset. This is the only
// place the base offset moves.
func (c *Controller) startEngineLocked(offset float64) error {
	c.destroyEngineLocked()

	manifestURL := buildManifestURL(c.urlTemplate, c.audioLang, offset)
	if err := validateManifestURL(manifestURL); err != nil {
		return err
	}

	eng, err := c.engines.New(c.ctx, manifestURL, true)
	if err != nil {
		return err
	}
	c.engineGen++
	c.engine = eng
	c.baseOffset = offset
	c.st.IsLoading = true
	c.logger.Debug().Int("generation", c.engineGen).Float64("offset", offset).Msg("engine instance created")

	go c.consumeEngine(eng, c.engineGen)
	return nil
}

// destroyEngineLocked tears the live instance down. Destroy closes the
// event channel; the generation counter drops anything already in flight.
func (c *Controller) destroyEngineLocked() {
	if c.engine == nil {
		return
	}
	if err := c.engine.Destroy(); err != nil {
		c.logger.Warn().Err(err).Msg("engine destroy failed")
	}
	c.engine = nil
}

func (c *Controller) consumeEngine(eng ports.Engine, gen int) {
	for ev := range eng.Events() {
		c.handleEngineEvent(gen, ev)
	}
}

func (c *Controller) handleEngineEvent(gen int, ev ports.EngineEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.engineGen || c.castSession != nil {
		// Stale instance, or the cast receiver is authoritative.
		return
	}

	switch ev.Kind {
	case ports.EngineStarted:
		c.setPhaseLocked(domain.PhasePlaying)
		c.st.IsPlaying = true
		c.restartSaveLoopLocked()

	case ports.EnginePaused:
		c.setPhaseLocked(domain.PhasePaused)
		c.st.IsPlaying = false
		c.stopSaveLoopLocked()
		c.saveAsyncLocked(false, nil)

	case ports.EngineStreamInitialized:
		c.setPhaseLocked(domain.PhaseReady)
		c.st.Qualities = ev.Qualities
		c.st.SelectedQuality = -1
		c.st.TextTracks = ev.TextTracks
		c.applyDefaultTextTrackLocked()

	case ports.EngineMetadataLoaded:
		if c.st.Duration <= 0 && ev.Duration > 0 && !math.IsInf(ev.Duration, 0) {
			c.st.Duration = ev.Duration
		}

	case ports.EngineTimeUpdate:
		if c.scrubbing {
			// The user owns the position while dragging.
			return
		}
		if c.st.Duration > 0 && !math.IsNaN(ev.Position) {
			abs := c.baseOffset + ev.Position
			c.st.CurrentTime = abs
			c.st.Progress = abs / c.st.Duration * 100
		}

	case ports.EngineBufferUpdate:
		if c.st.Duration > 0 {
			c.st.Buffer = (c.baseOffset + ev.Position + ev.Buffered) / c.st.Duration * 100
		}

	case ports.EngineWaiting:
		c.st.IsLoading = true

	case ports.EnginePlaying:
		c.st.IsLoading = false

	case ports.EngineQualityChanged:
		c.st.SelectedQuality = ev.QualityIndex

	case ports.EngineEnded:
		// Short final segments or early termination must not be mistaken
		// for completion.
		if c.st.Duration <= 0 || math.Abs(c.st.CurrentTime-c.st.Duration) >= finishToleranceSeconds {
			return
		}
		c.st.IsFinished = true
		c.st.IsPlaying = false
		c.setPhaseLocked(domain.PhaseEnded)
		c.stopSaveLoopLocked()
		c.saveAsyncLocked(true, nil)
		c.st.UpNext = c.upNext
		c.publishLocked("session.finished")

	case ports.EngineFailed:
		if ev.Err != nil && ev.Err.Code == manifestRefreshErrorCode {
			return
		}
		if ev.Err != nil {
			c.st.LastError = ev.Err.Error()
		} else {
			c.st.LastError = "an unknown error occurred while trying to play the video"
		}
		c.st.IsLoading = false
		c.setPhaseLocked(domain.PhaseError)
		c.publishLocked("session.error")
		return
	}

	c.publishLocked("session.state")
}

func (c *Controller) applyDefaultTextTrackLocked() {
	if len(c.st.TextTracks) == 0 {
		c.st.SelectedTextTrack = -1
		return
	}
	idx := 0
	for i, t := range c.st.TextTracks {
		if strings.HasPrefix(strings.ToLower(t.Language), "en") {
			idx = i
			break
		}
	}
	if c.engine != nil {
		if err := c.engine.SetTextTrack(idx); err != nil {
			c.logger.Warn().Err(err).Msg("default text track selection failed")
			return
		}
	}
	c.st.SelectedTextTrack = idx
}

func (c *Controller) setPhaseLocked(to domain.PlayerPhase) {
	if !domain.CanTransition(c.st.Phase, to) {
		c.logger.Debug().Str("from", string(c.st.Phase)).Str("to", string(to)).Msg("phase transition ignored")
		return
	}
	c.st.Phase = to
}

// --- user intent -----------------------------------------------------------

// PlayPause toggles playback; on a finished session it replays instead.
func (c *Controller) PlayPause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("session closed")
	}
	if c.st.IsFinished {
		return c.replayLocked()
	}
	if c.castSession != nil {
		return c.castSession.PlayOrPause(c.ctx)
	}
	if c.engine == nil {
		return nil
	}
	if c.st.IsPlaying {
		return c.engine.Pause()
	}
	return c.engine.Play()
}

// BeginScrub enters scrub mode at the given progress percentage. Engine
// time updates are suppressed until the scrub commits so they cannot fight
// the user's drag.
func (c *Controller) BeginScrub(progressPct float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.st.Duration <= 0 {
		return
	}
	c.scrubbing = true
	progressPct = clamp(progressPct, 0, 100)
	c.st.Progress = progressPct
	c.st.CurrentTime = progressPct / 100 * c.st.Duration
	c.publishLocked("session.state")
}

// CommitScrub ends scrub mode and commits the pending position.
func (c *Controller) CommitScrub() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("session closed")
	}
	c.scrubbing = false
	if c.st.Duration <= 0 {
		return nil
	}
	return c.seekCommitLocked(c.st.Progress / 100 * c.st.Duration)
}

// Skip moves the position by the fixed step, clamped to [0, duration].
func (c *Controller) Skip(forward bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.st.Duration <= 0 {
		return nil
	}
	amount := skipSeconds
	if !forward {
		amount = -skipSeconds
	}
	return c.seekCommitLocked(clamp(c.st.CurrentTime+amount, 0, c.st.Duration))
}

// seekCommitLocked is the single discontinuous-position path: remote
// sessions seek in place, the local engine is rebuilt at the new offset.
func (c *Controller) seekCommitLocked(target float64) error {
	c.st.CurrentTime = target
	if c.st.Duration > 0 {
		c.st.Progress = target / c.st.Duration * 100
	}
	if c.castSession != nil {
		return c.castSession.SeekTo(c.ctx, target)
	}
	if err := c.startEngineLocked(target); err != nil {
		c.st.LastError = err.Error()
		c.st.IsLoading = false
		c.setPhaseLocked(domain.PhaseError)
		c.publishLocked("session.error")
		return err
	}
	c.saveAsyncLocked(false, &target)
	c.publishLocked("session.state")
	return nil
}

// SetAudioLanguage switches the audio track by rebuilding the engine on a
// re-substituted manifest, preserving the absolute position. Not available
// while casting.
func (c *Controller) SetAudioLanguage(lang string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("session closed")
	}
	if c.castSession != nil {
		return nil
	}
	if _, ok := c.st.AudioLanguages[lang]; !ok && len(c.st.AudioLanguages) > 0 {
		return errors.New("unknown audio language: " + lang)
	}
	c.audioLang = lang
	c.st.AudioLanguage = lang
	if err := c.startEngineLocked(c.st.CurrentTime); err != nil {
		c.st.LastError = err.Error()
		c.setPhaseLocked(domain.PhaseError)
		c.publishLocked("session.error")
		return err
	}
	c.publishLocked("session.state")
	return nil
}

// Replay restarts a finished session from zero.
func (c *Controller) Replay() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("session closed")
	}
	return c.replayLocked()
}

func (c *Controller) replayLocked() error {
	c.st.IsFinished = false
	c.st.UpNext = nil
	c.st.CurrentTime = 0
	c.st.Progress = 0
	if c.castSession != nil {
		if err := c.castSession.SeekTo(c.ctx, 0); err != nil {
			return err
		}
		if !c.st.IsPlaying {
			return c.castSession.PlayOrPause(c.ctx)
		}
		return nil
	}
	c.st.IsLoading = true
	c.st.IsPlaying = true
	if err := c.startEngineLocked(0); err != nil {
		c.st.LastError = err.Error()
		c.setPhaseLocked(domain.PhaseError)
		c.publishLocked("session.error")
		return err
	}
	c.publishLocked("session.state")
	return nil
}

func (c *Controller) SetVolume(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	v = clamp(v, 0, 1)
	c.st.Volume = v
	c.st.IsMuted = v == 0
	if v > 0 {
		c.lastVolume = v
	}
	err := c.applyVolumeLocked(v)
	c.publishLocked("session.state")
	return err
}

// ToggleMute restores the pre-mute volume on unmute.
func (c *Controller) ToggleMute() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	var err error
	if !c.st.IsMuted {
		c.lastVolume = c.st.Volume
		c.st.IsMuted = true
		c.st.Volume = 0
		if c.castSession != nil {
			err = c.castSession.SetMuted(c.ctx, true)
		} else {
			err = c.applyVolumeLocked(0)
		}
	} else {
		v := c.lastVolume
		if v <= 0 {
			v = 1
		}
		c.st.IsMuted = false
		c.st.Volume = v
		if c.castSession != nil {
			err = c.castSession.SetMuted(c.ctx, false)
		} else {
			err = c.applyVolumeLocked(v)
		}
	}
	c.publishLocked("session.state")
	return err
}

func (c *Controller) applyVolumeLocked(v float64) error {
	if c.castSession != nil {
		return c.castSession.SetVolume(c.ctx, v)
	}
	if c.engine != nil {
		return c.engine.SetVolume(v)
	}
	return nil
}

// SetPlaybackRate is a no-op while casting: the receiver cannot do it.
// Only rates from AvailablePlaybackRates are accepted.
func (c *Controller) SetPlaybackRate(rate float64) error {
	if !validPlaybackRate(rate) {
		return fmt.Errorf("unsupported playback rate: %v", rate)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.castSession != nil || c.engine == nil {
		return nil
	}
	if err := c.engine.SetPlaybackRate(rate); err != nil {
		return err
	}
	c.st.PlaybackRate = rate
	c.publishLocked("session.state")
	return nil
}

// SetQuality selects a ladder rung (-1 for automatic). No-op while casting.
func (c *Controller) SetQuality(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.castSession != nil || c.engine == nil {
		return nil
	}
	if err := c.engine.SetQualityIndex(index); err != nil {
		return err
	}
	c.st.SelectedQuality = index
	c.publishLocked("session.state")
	return nil
}

// SetTextTrack selects a subtitle track (-1 for none). No-op while casting.
func (c *Controller) SetTextTrack(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.castSession != nil || c.engine == nil {
		return nil
	}
	if err := c.engine.SetTextTrack(index); err != nil {
		return err
	}
	c.st.SelectedTextTrack = index
	c.publishLocked("session.state")
	return nil
}

// --- casting ---------------------------------------------------------------

// StartCast hands authority to a receiver: the local engine is paused and
// destroyed (not kept around), and the receiver loads the stream at the
// current unified position.
func (c *Controller) StartCast(ctx context.Context, deviceID string) error {
	if c.cast == nil {
		return ErrCastUnavailable
	}

	sess, err := c.cast.Connect(ctx, deviceID)
	if err != nil {
		return &ports.CastError{Op: "connect", Err: err}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sess.Close()
		return errors.New("session closed")
	}

	pos := c.st.CurrentTime
	// Pause before teardown so local audio cannot overlap the receiver's.
	if c.engine != nil {
		_ = c.engine.Pause()
	}
	c.destroyEngineLocked()

	c.castSession = sess
	c.castGen++
	gen := c.castGen
	c.st.IsCasting = true
	c.st.CastDeviceName = sess.DeviceName()

	mediaURL := buildManifestURL(c.urlTemplate, c.audioLang, 0)
	title := c.target.Title
	c.publishLocked("session.state")
	c.mu.Unlock()

	if err := sess.Load(ctx, mediaURL, title, pos, true); err != nil {
		c.logger.Warn().Err(err).Str("device", deviceID).Msg("cast load failed, reverting to local playback")
		_ = sess.Close()
		c.revertToLocal(gen, pos)
		return &ports.CastError{Op: "load", Err: err}
	}

	go c.consumeCast(sess, gen)
	c.logger.Info().Str("device", sess.DeviceName()).Float64("position", pos).Msg("cast session started")
	return nil
}

// StopCast ends the remote session and resumes locally from wherever the
// receiver left off.
func (c *Controller) StopCast() error {
	c.mu.Lock()
	if c.castSession == nil {
		c.mu.Unlock()
		return nil
	}
	sess := c.castSession
	gen := c.castGen
	pos := c.st.CurrentTime
	c.mu.Unlock()

	if err := sess.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("cast session close failed")
	}
	c.revertToLocal(gen, pos)
	return nil
}

func (c *Controller) consumeCast(sess ports.CastSession, gen int) {
	for ev := range sess.Events() {
		if !c.handleCastEvent(gen, ev) {
			return
		}
	}
	// Channel closed without an explicit ended event: treat as session end.
	c.mu.Lock()
	pos := c.st.CurrentTime
	c.mu.Unlock()
	c.revertToLocal(gen, pos)
}

// handleCastEvent returns false once the session stopped being
// authoritative and the consumer should exit.
func (c *Controller) handleCastEvent(gen int, ev ports.CastEvent) bool {
	c.mu.Lock()
	if c.closed || gen != c.castGen || c.castSession == nil {
		c.mu.Unlock()
		return false
	}

	switch ev.Kind {
	case ports.CastTimeUpdate:
		if c.scrubbing {
			// The user owns the position while dragging, receiver polls
			// included.
			c.mu.Unlock()
			return true
		}
		c.st.CurrentTime = ev.Position
		if c.st.Duration > 0 {
			c.st.Progress = ev.Position / c.st.Duration * 100
		}

	case ports.CastPlaying:
		c.st.IsPlaying = true
		c.st.IsLoading = false
		c.setPhaseLocked(domain.PhasePlaying)
		c.restartSaveLoopLocked()

	case ports.CastPaused:
		c.st.IsPlaying = false
		c.setPhaseLocked(domain.PhasePaused)
		c.stopSaveLoopLocked()
		c.saveAsyncLocked(false, nil)

	case ports.CastEnded:
		pos := c.st.CurrentTime
		if ev.Position > 0 {
			pos = ev.Position
		}
		c.mu.Unlock()
		c.revertToLocal(gen, pos)
		return false

	case ports.CastFailed:
		c.logger.Warn().Err(ev.Err).Msg("cast session error, reverting to local playback")
		pos := c.st.CurrentTime
		c.mu.Unlock()
		c.revertToLocal(gen, pos)
		return false
	}

	c.publishLocked("session.state")
	c.mu.Unlock()
	return true
}

// revertToLocal flips authority back to a fresh engine instance at the last
// known remote position. Cross-device continuity: playback resumes where
// the receiver left off, not where the old local instance was.
func (c *Controller) revertToLocal(gen int, pos float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.castGen != gen || c.castSession == nil {
		return
	}
	c.castSession = nil
	c.st.IsCasting = false
	c.st.CastDeviceName = ""
	if c.closed {
		return
	}
	c.st.CurrentTime = pos
	if err := c.startEngineLocked(pos); err != nil {
		c.st.LastError = err.Error()
		c.setPhaseLocked(domain.PhaseError)
		c.publishLocked("session.error")
		return
	}
	c.publishLocked("session.state")
}

// --- up next ---------------------------------------------------------------

// SetUpNext attaches the next-episode prompt shown on completion.
func (c *Controller) SetUpNext(ref domain.EpisodeRef, info domain.UpNextInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextEpisode = &ref
	c.upNext = &info
	if c.st.IsFinished {
		c.st.UpNext = c.upNext
		c.publishLocked("session.state")
	}
}

// NextEpisode returns the queued next episode, if any.
func (c *Controller) NextEpisode() (domain.EpisodeRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nextEpisode == nil {
		return domain.EpisodeRef{}, false
	}
	return *c.nextEpisode, true
}

// --- progress persistence --------------------------------------------------

func (c *Controller) restartSaveLoopLocked() {
	c.stopSaveLoopLocked()
	ctx, cancel := context.WithCancel(c.ctx)
	c.saveCancel = cancel
	go func() {
		ticker := time.NewTicker(progressSaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				c.saveAsyncLocked(false, nil)
				c.mu.Unlock()
			}
		}
	}()
}

func (c *Controller) stopSaveLoopLocked() {
	if c.saveCancel != nil {
		c.saveCancel()
		c.saveCancel = nil
	}
}

// saveAsyncLocked snapshots the times under the lock and writes without it.
// Persistence is best effort: failures are logged, never surfaced.
func (c *Controller) saveAsyncLocked(finished bool, override *float64) {
	rec, ok := c.progressRecordLocked(finished, override)
	if !ok {
		return
	}
	key := c.target.Key()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveFlushTimeout)
		defer cancel()
		if err := c.progress.Put(ctx, key, rec); err != nil {
			c.logger.Warn().Err(err).Msg("failed to save watch progress")
		}
	}()
}

// progressRecordLocked applies the persistence protocol: explicit finishes
// record the full duration; positions within 10 s of the end are normalized
// to a finished record clamped to the duration; positions of 5 s or less
// are suppressed so accidental opens do not pollute history.
func (c *Controller) progressRecordLocked(finished bool, override *float64) (domain.WatchProgress, bool) {
	duration := c.st.Duration
	t := c.st.CurrentTime
	if override != nil {
		t = *override
	}

	if finished && duration > 0 {
		return domain.WatchProgress{CurrentTime: duration, IsFinished: true, Timestamp: c.now().UnixMilli()}, true
	}

	shouldFinish := duration > 0 && math.Abs(duration-t) < finishToleranceSeconds
	timeToSave := t
	if shouldFinish {
		timeToSave = duration
	}
	if timeToSave <= suppressSaveSeconds && !shouldFinish {
		return domain.WatchProgress{}, false
	}
	return domain.WatchProgress{CurrentTime: timeToSave, IsFinished: shouldFinish, Timestamp: c.now().UnixMilli()}, true
}

// --- teardown --------------------------------------------------------------

// Close tears the session down. A final progress write is initiated before
// resources are released; the write itself is fire-and-forget. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopSaveLoopLocked()
	c.saveAsyncLocked(false, nil)
	c.destroyEngineLocked()
	sess := c.castSession
	c.castSession = nil
	c.publishLocked("session.closed")
	c.mu.Unlock()

	if sess != nil {
		_ = sess.Close()
	}
	c.cancel()
	c.logger.Info().Msg("session closed")
}

// --- helpers ---------------------------------------------------------------

type sessionEvent struct {
	ID     string                `json:"id"`
	Target domain.PlaybackTarget `json:"target"`
	State  domain.PlaybackState  `json:"state"`
}

func (c *Controller) publishLocked(topic string) {
	if c.bus == nil {
		return
	}
	b, err := json.Marshal(sessionEvent{ID: c.id, Target: c.target, State: c.st})
	if err != nil {
		return
	}
	c.bus.Publish(topic, b)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
