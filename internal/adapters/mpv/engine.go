// Package mpv drives a local mpv process over its JSON IPC socket and
// exposes it as a playback engine. One process per engine instance, bound
// to one manifest URL: discontinuous position changes are handled upstream
// by creating a fresh instance, never by reconfiguring this one.
package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/tokonoko12/playdeck/internal/domain"
	"github.com/tokonoko12/playdeck/internal/ports"
)

const (
	connectRetryInterval = 100 * time.Millisecond
	connectTimeout       = 10 * time.Second
	quitGracePeriod      = 2 * time.Second

	// errorFailedCode is the generic engine error code for a failed load.
	errorFailedCode = 1
)

type Factory struct {
	Binary string
	Logger zerolog.Logger
}

func NewFactory(binary string, logger zerolog.Logger) *Factory {
	if binary == "" {
		binary = "mpv"
	}
	return &Factory{Binary: binary, Logger: logger}
}

var _ ports.EngineFactory = (*Factory)(nil)

func (f *Factory) New(ctx context.Context, manifestURL string, autoplay bool) (ports.Engine, error) {
	socketPath := filepath.Join(os.TempDir(), "playdeck-mpv-"+xid.New().String()+".sock")

	args := []string{
		"--no-terminal",
		"--idle=no",
		"--force-window=yes",
		"--input-ipc-server=" + socketPath,
	}
	if !autoplay {
		args = append(args, "--pause")
	}
	args = append(args, manifestURL)

	cmd := exec.Command(f.Binary, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mpv: %w", err)
	}

	conn, err := dialWithRetry(ctx, socketPath)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("connect mpv ipc: %w", err)
	}

	e := &Engine{
		logger:     f.Logger.With().Str("component", "mpv").Str("socket", socketPath).Logger(),
		cmd:        cmd,
		conn:       conn,
		socketPath: socketPath,
		events:     make(chan ports.EngineEvent, 64),
		done:       make(chan struct{}),
		loopDone:   make(chan struct{}),
		pending:    make(map[int64]chan ipcResponse),
	}
	go e.readLoop()
	if err := e.observeProperties(); err != nil {
		_ = e.Destroy()
		return nil, err
	}
	return e, nil
}

func dialWithRetry(ctx context.Context, socketPath string) (net.Conn, error) {
	deadline := time.Now().Add(connectTimeout)
	for {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectRetryInterval):
		}
	}
}

type Engine struct {
	logger     zerolog.Logger
	cmd        *exec.Cmd
	conn       net.Conn
	socketPath string

	events chan ports.EngineEvent

	// done flips first during Destroy so emitters and in-flight requests
	// unblock before the events channel closes.
	done     chan struct{}
	loopDone chan struct{}
	tasks    sync.WaitGroup

	writeMu sync.Mutex
	reqID   int64

	pendingMu sync.Mutex
	pending   map[int64]chan ipcResponse

	stateMu     sync.Mutex
	lastTimePos float64
	fileLoaded  bool

	destroyOnce sync.Once
}

var _ ports.Engine = (*Engine)(nil)

type ipcRequest struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id,omitempty"`
}

type ipcResponse struct {
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID int64           `json:"request_id,omitempty"`
}

func (e *Engine) Events() <-chan ports.EngineEvent { return e.events }

func (e *Engine) Play() error  { return e.setProperty("pause", false) }
func (e *Engine) Pause() error { return e.setProperty("pause", true) }

func (e *Engine) SeekLocal(seconds float64) error {
	return e.command("seek", seconds, "absolute")
}

func (e *Engine) SetVolume(v float64) error {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return e.setProperty("volume", v*100)
}

func (e *Engine) SetMuted(muted bool) error { return e.setProperty("mute", muted) }

func (e *Engine) SetPlaybackRate(rate float64) error { return e.setProperty("speed", rate) }

// SetQualityIndex maps ladder indices onto mpv's video track ids; -1 hands
// rendition selection back to the demuxer.
func (e *Engine) SetQualityIndex(index int) error {
	if index < 0 {
		return e.setProperty("vid", "auto")
	}
	return e.setProperty("vid", index+1)
}

func (e *Engine) SetTextTrack(index int) error {
	if index < 0 {
		return e.setProperty("sid", "no")
	}
	return e.setProperty("sid", index+1)
}

func (e *Engine) Destroy() error {
	e.destroyOnce.Do(func() {
		close(e.done)

		// Best-effort polite quit, then the hammer.
		_ = e.command("quit")
		exited := make(chan struct{})
		go func() {
			_ = e.cmd.Wait()
			close(exited)
		}()
		select {
		case <-exited:
		case <-time.After(quitGracePeriod):
			_ = e.cmd.Process.Kill()
			<-exited
		}
		_ = e.conn.Close()

		// The events channel may only close once the read loop and every
		// helper goroutine have stopped sending on it.
		<-e.loopDone
		e.tasks.Wait()
		_ = os.Remove(e.socketPath)
		close(e.events)
	})
	return nil
}

func (e *Engine) observeProperties() error {
	for i, prop := range []string{"time-pos", "duration", "pause", "paused-for-cache", "demuxer-cache-time"} {
		if err := e.command("observe_property", i+1, prop); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) setProperty(name string, value any) error {
	return e.command("set_property", name, value)
}

func (e *Engine) command(args ...any) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.reqID++
	b, err := json.Marshal(ipcRequest{Command: args, RequestID: e.reqID})
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := e.conn.Write(b); err != nil {
		return err
	}
	return nil
}

// request issues a command and waits for its matched response.
func (e *Engine) request(args ...any) (json.RawMessage, error) {
	e.writeMu.Lock()
	e.reqID++
	id := e.reqID
	ch := make(chan ipcResponse, 1)
	e.pendingMu.Lock()
	e.pending[id] = ch
	e.pendingMu.Unlock()

	b, err := json.Marshal(ipcRequest{Command: args, RequestID: id})
	if err == nil {
		b = append(b, '\n')
		_, err = e.conn.Write(b)
	}
	e.writeMu.Unlock()
	if err != nil {
		e.dropPending(id)
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != "" && resp.Error != "success" {
			return nil, errors.New("mpv: " + resp.Error)
		}
		return resp.Data, nil
	case <-e.done:
		e.dropPending(id)
		return nil, errors.New("mpv: engine destroyed")
	case <-time.After(5 * time.Second):
		e.dropPending(id)
		return nil, errors.New("mpv: ipc request timed out")
	}
}

func (e *Engine) dropPending(id int64) {
	e.pendingMu.Lock()
	delete(e.pending, id)
	e.pendingMu.Unlock()
}

func (e *Engine) readLoop() {
	defer close(e.loopDone)
	scanner := bufio.NewScanner(e.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		var msg rawMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		if msg.Event == "" {
			e.dispatchResponse(msg)
			continue
		}
		e.dispatchEvent(msg)
	}
}

type rawMessage struct {
	Event     string          `json:"event"`
	Name      string          `json:"name"`
	Reason    string          `json:"reason"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	RequestID int64           `json:"request_id"`
	FileError string          `json:"file_error"`
}

func (e *Engine) dispatchResponse(msg rawMessage) {
	e.pendingMu.Lock()
	ch, ok := e.pending[msg.RequestID]
	if ok {
		delete(e.pending, msg.RequestID)
	}
	e.pendingMu.Unlock()
	if ok {
		ch <- ipcResponse{Error: msg.Error, Data: msg.Data, RequestID: msg.RequestID}
	}
}

func (e *Engine) dispatchEvent(msg rawMessage) {
	switch msg.Event {
	case "file-loaded":
		// Off the read loop: onFileLoaded issues an IPC request whose
		// response only the read loop can deliver.
		e.tasks.Add(1)
		go func() {
			defer e.tasks.Done()
			e.onFileLoaded()
		}()

	case "playback-restart":
		e.emit(ports.EngineEvent{Kind: ports.EnginePlaying})

	case "property-change":
		e.onPropertyChange(msg)

	case "end-file":
		switch msg.Reason {
		case "eof":
			e.emit(ports.EngineEvent{Kind: ports.EngineEnded})
		case "error":
			e.emit(ports.EngineEvent{
				Kind: ports.EngineFailed,
				Err:  &ports.EngineError{Code: errorFailedCode, Message: "playback failed: " + msg.FileError},
			})
		}
	}
}

func (e *Engine) onPropertyChange(msg rawMessage) {
	switch msg.Name {
	case "time-pos":
		var pos float64
		if json.Unmarshal(msg.Data, &pos) != nil {
			return
		}
		e.stateMu.Lock()
		e.lastTimePos = pos
		e.stateMu.Unlock()
		e.emit(ports.EngineEvent{Kind: ports.EngineTimeUpdate, Position: pos})

	case "duration":
		var dur float64
		if json.Unmarshal(msg.Data, &dur) != nil {
			return
		}
		if dur > 0 {
			e.emit(ports.EngineEvent{Kind: ports.EngineMetadataLoaded, Duration: dur})
		}

	case "pause":
		var paused bool
		if json.Unmarshal(msg.Data, &paused) != nil {
			return
		}
		if paused {
			e.emit(ports.EngineEvent{Kind: ports.EnginePaused})
		} else {
			e.emit(ports.EngineEvent{Kind: ports.EngineStarted})
		}

	case "paused-for-cache":
		var waiting bool
		if json.Unmarshal(msg.Data, &waiting) != nil {
			return
		}
		if waiting {
			e.emit(ports.EngineEvent{Kind: ports.EngineWaiting})
		} else {
			e.emit(ports.EngineEvent{Kind: ports.EnginePlaying})
		}

	case "demuxer-cache-time":
		var cacheTime float64
		if json.Unmarshal(msg.Data, &cacheTime) != nil {
			return
		}
		e.stateMu.Lock()
		pos := e.lastTimePos
		e.stateMu.Unlock()
		buffered := cacheTime - pos
		if buffered < 0 {
			buffered = 0
		}
		e.emit(ports.EngineEvent{Kind: ports.EngineBufferUpdate, Position: pos, Buffered: buffered})
	}
}

// onFileLoaded reads the track list once and publishes the quality ladder
// and subtitle tracks. This is the only point menus may be populated from.
func (e *Engine) onFileLoaded() {
	e.stateMu.Lock()
	if e.fileLoaded {
		e.stateMu.Unlock()
		return
	}
	e.fileLoaded = true
	e.stateMu.Unlock()

	data, err := e.request("get_property", "track-list")
	if err != nil {
		e.logger.Warn().Err(err).Msg("track-list query failed")
		e.emit(ports.EngineEvent{Kind: ports.EngineStreamInitialized})
		return
	}

	var tracks []struct {
		Type       string `json:"type"`
		ID         int    `json:"id"`
		Lang       string `json:"lang"`
		Title      string `json:"title"`
		DemuxW     int    `json:"demux-w"`
		DemuxH     int    `json:"demux-h"`
		HLSBitrate int    `json:"hls-bitrate"`
	}
	if err := json.Unmarshal(data, &tracks); err != nil {
		e.logger.Warn().Err(err).Msg("track-list decode failed")
		e.emit(ports.EngineEvent{Kind: ports.EngineStreamInitialized})
		return
	}

	var qualities []domain.Quality
	var texts []domain.TextTrack
	for _, tr := range tracks {
		switch tr.Type {
		case "video":
			qualities = append(qualities, domain.Quality{
				Index:   len(qualities),
				Bitrate: tr.HLSBitrate,
				Width:   tr.DemuxW,
				Height:  tr.DemuxH,
			})
		case "sub":
			texts = append(texts, domain.TextTrack{
				Index:    len(texts),
				Language: tr.Lang,
				Label:    tr.Title,
			})
		}
	}
	e.emit(ports.EngineEvent{Kind: ports.EngineStreamInitialized, Qualities: qualities, TextTracks: texts})
}

// emit delivers an event to the consumer. High-frequency position and buffer
// updates are droppable when the buffer is full; everything else carries a
// state transition and must not be lost, so those sends block until the
// consumer takes them or the engine is destroyed.
func (e *Engine) emit(ev ports.EngineEvent) {
	switch ev.Kind {
	case ports.EngineTimeUpdate, ports.EngineBufferUpdate:
		select {
		case e.events <- ev:
		case <-e.done:
		default:
		}
	default:
		select {
		case e.events <- ev:
		case <-e.done:
		}
	}
}
