// Package action dispatches a recognized command to its effect: a no-op
// acknowedgement, ending the listening chain, process termination, spawning
// an external executable or shell command, or running a sandboxed script
// (internal/script). Dispatch never blocks the controller for longer than a
// command's own timeout; spawn-only kinds report success as soon as the
// process starts.
package action

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/agalue/jarvis-voice/internal/catalog"
	"github.com/agalue/jarvis-voice/internal/slots"
)

// terminateDelay is the short fixed pause before a terminate command asks
// the process to exit, giving any pending acknowledgement sound or IPC
// event a chance to flush.
const terminateDelay = 500 * time.Millisecond

// Scripter runs a sandboxed script command and reports whether the
// controller should keep listening for a follow-up utterance. It is
// satisfied by *script.Host; declared here as an interface so the executor
// does not need to depend on goja or any sandbox internals directly.
type Scripter interface {
	Run(ctx context.Context, cmd *catalog.Command, utterance string, slotValues map[string]slots.Value) (chain bool, err error)
}

// Result is the outcome of dispatching one command.
type Result struct {
	// Chain is true if the controller should stay in listening mode for a
	// follow-up utterance rather than returning to idle.
	Chain bool
}

// Executor dispatches catalog commands by kind.
type Executor struct {
	scripter  Scripter
	terminate func()
}

// Option configures an Executor.
type Option func(*Executor)

// WithTerminate overrides the callback invoked (after terminateDelay) by a
// terminate command. Defaults to nil, which makes terminate a no-op beyond
// the delay — callers embedding the pipeline as a library should always
// supply one.
func WithTerminate(fn func()) Option {
	return func(e *Executor) { e.terminate = fn }
}

// New returns an Executor that delegates script commands to scripter.
func New(scripter Scripter, opts ...Option) *Executor {
	e := &Executor{scripter: scripter}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute dispatches cmd according to its Kind and returns whether the
// controller should chain into another listening cycle.
func (e *Executor) Execute(ctx context.Context, cmd *catalog.Command, utterance string, slotValues map[string]slots.Value) (Result, error) {
	switch cmd.Kind {
	case catalog.KindNoop:
		return Result{Chain: true}, nil

	case catalog.KindStopChain:
		return Result{Chain: false}, nil

	case catalog.KindTerminate:
		time.Sleep(terminateDelay)
		if e.terminate != nil {
			e.terminate()
		}
		return Result{Chain: false}, nil

	case catalog.KindExternalExe:
		c := exec.CommandContext(context.WithoutCancel(ctx), cmd.ExePath, cmd.ExeArgs...)
		if err := c.Start(); err != nil {
			return Result{}, fmt.Errorf("action: spawn %q: %w", cmd.ExePath, err)
		}
		return Result{Chain: true}, nil

	case catalog.KindShell:
		name, args := shellInvocation(cmd.ShellCommand)
		c := exec.CommandContext(context.WithoutCancel(ctx), name, args...)
		if err := c.Start(); err != nil {
			return Result{}, fmt.Errorf("action: spawn shell command: %w", err)
		}
		return Result{Chain: true}, nil

	case catalog.KindScript:
		if e.scripter == nil {
			return Result{}, fmt.Errorf("action: command %q is a script but no script host is configured", cmd.ID)
		}
		chain, err := e.scripter.Run(ctx, cmd, utterance, slotValues)
		if err != nil {
			return Result{}, fmt.Errorf("action: run script for %q: %w", cmd.ID, err)
		}
		return Result{Chain: chain}, nil

	default:
		return Result{}, fmt.Errorf("action: unknown command kind %q", cmd.Kind)
	}
}

// shellInvocation returns the platform shell and the flag that makes it run
// a single command string, mirroring how every OS-native shell spawn is
// expressed: "sh -c <cmd>" on POSIX, "cmd /C <cmd>" on Windows.
func shellInvocation(command string) (name string, args []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", command}
	}
	return "sh", []string{"-c", command}
}
