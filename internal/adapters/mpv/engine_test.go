package mpv

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tokonoko12/playdeck/internal/ports"
)

func newBareEngine(buffer int) *Engine {
	return &Engine{
		logger:   zerolog.Nop(),
		events:   make(chan ports.EngineEvent, buffer),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		pending:  make(map[int64]chan ipcResponse),
	}
}

func TestEmit_DropsPositionUpdatesWhenSaturated(t *testing.T) {
	e := newBareEngine(1)

	e.emit(ports.EngineEvent{Kind: ports.EngineTimeUpdate, Position: 1})

	// Le buffer est plein: les mises à jour de position suivantes doivent
	// repartir sans bloquer.
	finished := make(chan struct{})
	go func() {
		e.emit(ports.EngineEvent{Kind: ports.EngineTimeUpdate, Position: 2})
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("position update must not block on a full buffer")
	}

	if ev := <-e.events; ev.Position != 1 {
		t.Fatalf("kept update position = %v, want 1", ev.Position)
	}
}

func TestEmit_NeverDropsStateTransitions(t *testing.T) {
	e := newBareEngine(1)

	e.emit(ports.EngineEvent{Kind: ports.EngineTimeUpdate, Position: 1})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.emit(ports.EngineEvent{Kind: ports.EngineEnded})
	}()

	if ev := <-e.events; ev.Kind != ports.EngineTimeUpdate {
		t.Fatalf("first event = %v", ev.Kind)
	}
	select {
	case ev := <-e.events:
		if ev.Kind != ports.EngineEnded {
			t.Fatalf("second event = %v, want the ended transition", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatalf("ended transition was lost under buffer pressure")
	}
	wg.Wait()
}

func TestEmit_DestroyedEngineReleasesBlockedSend(t *testing.T) {
	e := newBareEngine(1)

	e.emit(ports.EngineEvent{Kind: ports.EngineTimeUpdate, Position: 1})

	released := make(chan struct{})
	go func() {
		e.emit(ports.EngineEvent{Kind: ports.EngineEnded})
		close(released)
	}()

	close(e.done)
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatalf("teardown must release a blocked sender")
	}
}

// Le read loop sert les réponses IPC; la requête track-list déclenchée par
// file-loaded doit donc partir sur une goroutine séparée.
func TestReadLoop_FileLoadedPublishesTrackList(t *testing.T) {
	engineSide, mpvSide := net.Pipe()
	t.Cleanup(func() {
		_ = engineSide.Close()
		_ = mpvSide.Close()
	})

	e := newBareEngine(8)
	e.conn = engineSide
	go e.readLoop()

	// Côté processus simulé: annonce file-loaded, puis répond à la requête
	// track-list qui doit suivre.
	go func() {
		_, _ = mpvSide.Write([]byte(`{"event":"file-loaded"}` + "\n"))

		scanner := bufio.NewScanner(mpvSide)
		if !scanner.Scan() {
			return
		}
		var req ipcRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			return
		}
		resp := `{"request_id":` + jsonInt(req.RequestID) + `,"error":"success","data":[` +
			`{"type":"video","id":1,"demux-w":1920,"demux-h":1080,"hls-bitrate":3000000},` +
			`{"type":"sub","id":1,"lang":"en","title":"English"}]}` + "\n"
		_, _ = mpvSide.Write([]byte(resp))
	}()

	select {
	case ev := <-e.events:
		if ev.Kind != ports.EngineStreamInitialized {
			t.Fatalf("event = %v, want stream initialized", ev.Kind)
		}
		if len(ev.Qualities) != 1 || ev.Qualities[0].Height != 1080 {
			t.Fatalf("qualities = %+v", ev.Qualities)
		}
		if len(ev.TextTracks) != 1 || ev.TextTracks[0].Language != "en" {
			t.Fatalf("text tracks = %+v", ev.TextTracks)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the track list")
	}

	// La fermeture de la connexion termine le read loop.
	_ = engineSide.Close()
	select {
	case <-e.loopDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("read loop did not stop on connection close")
	}
	e.tasks.Wait()
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
