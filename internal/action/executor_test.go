package action_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agalue/jarvis-voice/internal/action"
	"github.com/agalue/jarvis-voice/internal/catalog"
	"github.com/agalue/jarvis-voice/internal/slots"
)

type fakeScripter struct {
	chain bool
	err   error
	calls int
}

func (f *fakeScripter) Run(_ context.Context, _ *catalog.Command, _ string, _ map[string]slots.Value) (bool, error) {
	f.calls++
	return f.chain, f.err
}

func TestExecute_Noop_ChainsTrue(t *testing.T) {
	e := action.New(nil)
	res, err := e.Execute(context.Background(), &catalog.Command{Kind: catalog.KindNoop}, "", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Chain {
		t.Error("Execute(noop): Chain = false; want true")
	}
}

func TestExecute_StopChain_ChainsFalse(t *testing.T) {
	e := action.New(nil)
	res, err := e.Execute(context.Background(), &catalog.Command{Kind: catalog.KindStopChain}, "", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Chain {
		t.Error("Execute(stop-chain): Chain = true; want false")
	}
}

func TestExecute_Terminate_InvokesCallbackAfterDelay(t *testing.T) {
	called := make(chan struct{}, 1)
	e := action.New(nil, action.WithTerminate(func() { called <- struct{}{} }))

	start := time.Now()
	res, err := e.Execute(context.Background(), &catalog.Command{Kind: catalog.KindTerminate}, "", nil)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Chain {
		t.Error("Execute(terminate): Chain = true; want false")
	}
	if elapsed < 100*time.Millisecond {
		t.Errorf("Execute(terminate) returned after %v; want a short fixed delay", elapsed)
	}
	select {
	case <-called:
	default:
		t.Error("Execute(terminate): terminate callback was not invoked")
	}
}

func TestExecute_Terminate_NoCallbackConfigured_StillReturns(t *testing.T) {
	e := action.New(nil)
	res, err := e.Execute(context.Background(), &catalog.Command{Kind: catalog.KindTerminate}, "", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Chain {
		t.Error("Execute(terminate): Chain = true; want false")
	}
}

func TestExecute_ExternalExe_SpawnsAndChains(t *testing.T) {
	e := action.New(nil)
	cmd := &catalog.Command{Kind: catalog.KindExternalExe, ExePath: "/bin/true"}
	res, err := e.Execute(context.Background(), cmd, "", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Chain {
		t.Error("Execute(external-exe): Chain = false; want true")
	}
}

func TestExecute_ExternalExe_BadPath_ReturnsError(t *testing.T) {
	e := action.New(nil)
	cmd := &catalog.Command{Kind: catalog.KindExternalExe, ExePath: "/no/such/binary/anywhere"}
	if _, err := e.Execute(context.Background(), cmd, "", nil); err == nil {
		t.Fatal("Execute(external-exe): expected error for nonexistent binary")
	}
}

func TestExecute_Shell_SpawnsAndChains(t *testing.T) {
	e := action.New(nil)
	cmd := &catalog.Command{Kind: catalog.KindShell, ShellCommand: "true"}
	res, err := e.Execute(context.Background(), cmd, "", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Chain {
		t.Error("Execute(shell): Chain = false; want true")
	}
}

func TestExecute_Script_DelegatesToScripter(t *testing.T) {
	scripter := &fakeScripter{chain: true}
	e := action.New(scripter)
	cmd := &catalog.Command{Kind: catalog.KindScript, ID: "set_timer"}

	res, err := e.Execute(context.Background(), cmd, "set a timer", map[string]slots.Value{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Chain {
		t.Error("Execute(script): Chain = false; want true")
	}
	if scripter.calls != 1 {
		t.Errorf("scripter.Run called %d times; want 1", scripter.calls)
	}
}

func TestExecute_Script_PropagatesScripterError(t *testing.T) {
	scripter := &fakeScripter{err: errors.New("sandbox violation")}
	e := action.New(scripter)
	cmd := &catalog.Command{Kind: catalog.KindScript, ID: "bad_script"}

	if _, err := e.Execute(context.Background(), cmd, "", nil); err == nil {
		t.Fatal("Execute(script): expected error to propagate")
	}
}

func TestExecute_Script_NoScripterConfigured_ReturnsError(t *testing.T) {
	e := action.New(nil)
	cmd := &catalog.Command{Kind: catalog.KindScript, ID: "set_timer"}

	if _, err := e.Execute(context.Background(), cmd, "", nil); err == nil {
		t.Fatal("Execute(script): expected error when no scripter is configured")
	}
}

func TestExecute_UnknownKind_ReturnsError(t *testing.T) {
	e := action.New(nil)
	cmd := &catalog.Command{Kind: catalog.Kind("not-a-real-kind")}

	if _, err := e.Execute(context.Background(), cmd, "", nil); err == nil {
		t.Fatal("Execute: expected error for unknown kind")
	}
}
