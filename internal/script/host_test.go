package script_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agalue/jarvis-voice/internal/catalog"
	"github.com/agalue/jarvis-voice/internal/script"
	"github.com/agalue/jarvis-voice/internal/slots"
)

type fakeStateStore struct {
	data map[string]map[string]json.RawMessage
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{data: make(map[string]map[string]json.RawMessage)}
}

func (f *fakeStateStore) Get(_ context.Context, commandID, key string) (json.RawMessage, bool, error) {
	v, ok := f.data[commandID][key]
	return v, ok, nil
}

func (f *fakeStateStore) Set(_ context.Context, commandID, key string, value json.RawMessage) error {
	if f.data[commandID] == nil {
		f.data[commandID] = make(map[string]json.RawMessage)
	}
	f.data[commandID][key] = value
	return nil
}

func (f *fakeStateStore) Delete(_ context.Context, commandID, key string) (bool, error) {
	_, ok := f.data[commandID][key]
	delete(f.data[commandID], key)
	return ok, nil
}

func (f *fakeStateStore) Clear(_ context.Context, commandID string) error {
	delete(f.data, commandID)
	return nil
}

func (f *fakeStateStore) Keys(_ context.Context, commandID string) ([]string, error) {
	var keys []string
	for k := range f.data[commandID] {
		keys = append(keys, k)
	}
	return keys, nil
}

func (f *fakeStateStore) All(_ context.Context, commandID string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	for k, v := range f.data[commandID] {
		out[k] = v
	}
	return out, nil
}

type fakePlayer struct {
	calls []string
}

func (f *fakePlayer) PlayReaction(_ context.Context, lang, kind string) error {
	f.calls = append(f.calls, lang+":"+kind)
	return nil
}

func writeScript(t *testing.T, dir, name, source string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return name
}

func TestRun_NoScriptPath_ReturnsLoadError(t *testing.T) {
	h := script.New()
	cmd := &catalog.Command{ID: "bad", Kind: catalog.KindScript, Dir: t.TempDir()}

	_, err := h.Run(context.Background(), cmd, "", nil)
	if !errors.Is(err, script.ErrLoadFailed) {
		t.Fatalf("Run: err = %v; want ErrLoadFailed", err)
	}
}

func TestRun_NoReturnValue_DefaultsChainTrue(t *testing.T) {
	dir := t.TempDir()
	name := writeScript(t, dir, "main.js", `jarvis.log("info", "hello")`)
	h := script.New()
	cmd := &catalog.Command{ID: "greet", Kind: catalog.KindScript, Dir: dir, ScriptPath: name}

	chain, err := h.Run(context.Background(), cmd, "say hello", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !chain {
		t.Error("Run: chain = false; want true (default)")
	}
}

func TestRun_BareBooleanReturn_SetsChain(t *testing.T) {
	dir := t.TempDir()
	name := writeScript(t, dir, "main.js", `false`)
	h := script.New()
	cmd := &catalog.Command{ID: "stop", Kind: catalog.KindScript, Dir: dir, ScriptPath: name}

	chain, err := h.Run(context.Background(), cmd, "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if chain {
		t.Error("Run: chain = true; want false")
	}
}

func TestRun_ObjectReturn_ReadsChainField(t *testing.T) {
	dir := t.TempDir()
	name := writeScript(t, dir, "main.js", `({chain: false})`)
	h := script.New()
	cmd := &catalog.Command{ID: "stop2", Kind: catalog.KindScript, Dir: dir, ScriptPath: name}

	chain, err := h.Run(context.Background(), cmd, "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if chain {
		t.Error("Run: chain = true; want false")
	}
}

func TestRun_RuntimeError_WrapsErrRuntimeFailure(t *testing.T) {
	dir := t.TempDir()
	name := writeScript(t, dir, "main.js", `throw new Error("boom")`)
	h := script.New()
	cmd := &catalog.Command{ID: "throws", Kind: catalog.KindScript, Dir: dir, ScriptPath: name}

	_, err := h.Run(context.Background(), cmd, "", nil)
	if !errors.Is(err, script.ErrRuntimeFailure) {
		t.Fatalf("Run: err = %v; want ErrRuntimeFailure", err)
	}
}

func TestRun_Timeout_WrapsErrTimeout(t *testing.T) {
	dir := t.TempDir()
	name := writeScript(t, dir, "main.js", `while (true) {}`)
	h := script.New()
	cmd := &catalog.Command{ID: "loop", Kind: catalog.KindScript, Dir: dir, ScriptPath: name, TimeoutMs: 50}

	start := time.Now()
	_, err := h.Run(context.Background(), cmd, "", nil)
	elapsed := time.Since(start)

	if !errors.Is(err, script.ErrTimeout) {
		t.Fatalf("Run: err = %v; want ErrTimeout", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Run took %v to time out; want well under 2s", elapsed)
	}
}

func TestRun_DangerousGlobalsRemoved(t *testing.T) {
	dir := t.TempDir()
	name := writeScript(t, dir, "main.js", `typeof eval === "undefined" && typeof Function === "undefined"`)
	h := script.New()
	cmd := &catalog.Command{ID: "safe", Kind: catalog.KindScript, Dir: dir, ScriptPath: name}

	chain, err := h.Run(context.Background(), cmd, "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !chain {
		t.Error("Run: expected eval/Function to be undefined")
	}
}

func TestRun_MinimalSandbox_HTTPAndStateUnavailable(t *testing.T) {
	dir := t.TempDir()
	name := writeScript(t, dir, "main.js", `typeof jarvis.http === "undefined" && typeof jarvis.state === "undefined"`)
	h := script.New()
	cmd := &catalog.Command{
		ID: "minimal", Kind: catalog.KindScript, Dir: dir, ScriptPath: name,
		SandboxLevel: catalog.SandboxMinimal,
	}

	chain, err := h.Run(context.Background(), cmd, "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !chain {
		t.Error("Run: expected http/state to be absent at minimal tier")
	}
}

func TestRun_StandardSandbox_StateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	name := writeScript(t, dir, "main.js", `
		jarvis.state.set("count", 1);
		var v = jarvis.state.get("count");
		v === 1;
	`)
	store := newFakeStateStore()
	h := script.New(script.WithStateStore(store))
	cmd := &catalog.Command{
		ID: "counter", Kind: catalog.KindScript, Dir: dir, ScriptPath: name,
		SandboxLevel: catalog.SandboxStandard,
	}

	chain, err := h.Run(context.Background(), cmd, "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !chain {
		t.Error("Run: state round trip returned false")
	}
	if _, ok := store.data["counter"]["count"]; !ok {
		t.Error("Run: expected state to persist in the store")
	}
}

func TestRun_FSEscapeRejected(t *testing.T) {
	dir := t.TempDir()
	name := writeScript(t, dir, "main.js", `jarvis.fs.read("../../etc/passwd")`)
	h := script.New()
	cmd := &catalog.Command{
		ID: "escape", Kind: catalog.KindScript, Dir: dir, ScriptPath: name,
		SandboxLevel: catalog.SandboxStandard,
	}

	_, err := h.Run(context.Background(), cmd, "", nil)
	if !errors.Is(err, script.ErrRuntimeFailure) {
		t.Fatalf("Run: err = %v; want ErrRuntimeFailure (sandbox violation surfaces as a thrown exception)", err)
	}
}

func TestRun_FSConfinedReadWrite(t *testing.T) {
	dir := t.TempDir()
	name := writeScript(t, dir, "main.js", `
		jarvis.fs.write("note.txt", "hi");
		jarvis.fs.read("note.txt") === "hi";
	`)
	h := script.New()
	cmd := &catalog.Command{
		ID: "notes", Kind: catalog.KindScript, Dir: dir, ScriptPath: name,
		SandboxLevel: catalog.SandboxStandard,
	}

	chain, err := h.Run(context.Background(), cmd, "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !chain {
		t.Error("Run: expected write-then-read round trip to succeed")
	}
}

func TestRun_ContextExposesUtteranceCommandIDAndSlots(t *testing.T) {
	dir := t.TempDir()
	name := writeScript(t, dir, "main.js", `
		jarvis.context.phrase === "set a timer for 5 minutes" &&
		jarvis.context.command_id === "set_timer" &&
		jarvis.context.slots.duration === 5;
	`)
	h := script.New()
	cmd := &catalog.Command{ID: "set_timer", Kind: catalog.KindScript, Dir: dir, ScriptPath: name}

	chain, err := h.Run(context.Background(), cmd, "set a timer for 5 minutes", map[string]slots.Value{
		"duration": {Text: "5", Number: 5, IsNumber: true},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !chain {
		t.Error("Run: context fields did not match expectations")
	}
}

func TestRun_AudioPlay_DelegatesToPlayer(t *testing.T) {
	dir := t.TempDir()
	name := writeScript(t, dir, "main.js", `jarvis.audio.play_ok()`)
	player := &fakePlayer{}
	h := script.New(script.WithPlayer(player), script.WithLanguage("en"))
	cmd := &catalog.Command{ID: "ack", Kind: catalog.KindScript, Dir: dir, ScriptPath: name}

	if _, err := h.Run(context.Background(), cmd, "", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(player.calls) != 1 || player.calls[0] != "en:ok" {
		t.Errorf("player.calls = %v; want [en:ok]", player.calls)
	}
}
