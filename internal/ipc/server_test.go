package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/agalue/jarvis-voice/internal/session"
)

// --- test doubles -----------------------------------------------------

type fakeDispatcher struct {
	mu       sync.Mutex
	commands []string
	stopped  bool
	muted    bool
	reloads  int
}

func (d *fakeDispatcher) SubmitTextCommand(_ context.Context, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = append(d.commands, text)
}

func (d *fakeDispatcher) SetMuted(muted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.muted = muted
}

func (d *fakeDispatcher) ReloadCommands() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reloads++
}

func (d *fakeDispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
}

func (d *fakeDispatcher) snapshot() ([]string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.commands))
	copy(out, d.commands)
	return out, d.stopped
}

func (d *fakeDispatcher) state() (muted bool, reloads int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.muted, d.reloads
}

// --- tests --------------------------------------------------------------

func newRunningServer(t *testing.T, dispatcher Dispatcher) (*Server, context.CancelFunc) {
	t.Helper()
	srv, err := New("127.0.0.1:0")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := srv.Serve(ctx, dispatcher); err != nil && ctx.Err() == nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(cancel)
	return srv, cancel
}

func TestServerForwardsTextCommand(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	srv, _ := newRunningServer(t, dispatcher)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"action":"text_command","text":"turn off the lights"}` + "\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cmds, _ := dispatcher.snapshot(); len(cmds) == 1 {
			if cmds[0] != "turn off the lights" {
				t.Fatalf("command = %q, want %q", cmds[0], "turn off the lights")
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("dispatcher never received the text command")
}

func TestServerForwardsStop(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	srv, _ := newRunningServer(t, dispatcher)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"action":"stop"}` + "\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, stopped := dispatcher.snapshot(); stopped {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("dispatcher was never stopped")
}

func TestServerBroadcastsEventsInOrder(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	srv, _ := newRunningServer(t, dispatcher)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// Give the server a moment to register the connection before emitting;
	// Emit broadcasts only to clients registered at call time.
	time.Sleep(10 * time.Millisecond)

	srv.Emit(session.Event{Kind: session.EventWakeWordDetected})
	srv.Emit(session.Event{Kind: session.EventListening})
	srv.Emit(session.Event{Kind: session.EventIdle})

	reader := bufio.NewReader(conn)
	var kinds []string
	for i := 0; i < 3; i++ {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		line, err := reader.ReadBytes('\n')
		if err != nil {
			t.Fatalf("ReadBytes: %v", err)
		}
		var frame eventFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		kinds = append(kinds, frame.Kind)
	}

	want := []string{session.EventWakeWordDetected, session.EventListening, session.EventIdle}
	for i, k := range want {
		if kinds[i] != k {
			t.Fatalf("event %d kind = %q, want %q", i, kinds[i], k)
		}
	}
}

func TestServerForwardsMuteAndReload(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	srv, _ := newRunningServer(t, dispatcher)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	frames := `{"action":"set_muted","muted":true}` + "\n" +
		`{"action":"reload_commands"}` + "\n"
	if _, err := conn.Write([]byte(frames)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if muted, reloads := dispatcher.state(); muted && reloads == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	muted, reloads := dispatcher.state()
	t.Fatalf("dispatcher state = (muted=%v, reloads=%d), want (true, 1)", muted, reloads)
}

func TestServerAnswersPing(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	srv, _ := newRunningServer(t, dispatcher)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"action":"ping"}` + "\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	var frame eventFrame
	if err := json.Unmarshal(line, &frame); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if frame.Kind != "pong" {
		t.Fatalf("kind = %q, want %q", frame.Kind, "pong")
	}
}

func TestDecodeActionIgnoresUnknownFields(t *testing.T) {
	action, text, muted := decodeAction([]byte(`{"action":"text_command","text":"hello","request_id":"abc123"}`))
	if action != "text_command" || text != "hello" || muted {
		t.Fatalf("decodeAction = (%q, %q, %v)", action, text, muted)
	}
}
