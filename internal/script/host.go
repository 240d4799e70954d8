// Package script runs catalog script commands inside a sandboxed goja
// runtime, exposing a jarvis object whose surface is gated by the
// command's declared sandbox level. It satisfies internal/action.Scripter.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dop251/goja"

	"github.com/agalue/jarvis-voice/internal/catalog"
	"github.com/agalue/jarvis-voice/internal/slots"
)

// defaultTimeout applies when a script command does not declare one.
const defaultTimeout = 10 * time.Second

// Player plays a named reaction sound for the active language. Declared
// here rather than in internal/voicepack so the script host does not need
// to depend on the audio output stack directly.
type Player interface {
	PlayReaction(ctx context.Context, lang, kind string) error
}

// Host runs script commands. The zero value has no HTTP client timeout
// floor, no state store, and no player; New fills in sane defaults.
type Host struct {
	logger   *slog.Logger
	state    StateStore
	player   Player
	language string
}

// Option configures a Host.
type Option func(*Host)

// WithLogger overrides the logger scripts log through.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) { h.logger = logger }
}

// WithStateStore wires the persistent KV backend for standard+ sandbox
// commands. Without one, jarvis.state calls fail with ErrIO.
func WithStateStore(store StateStore) Option {
	return func(h *Host) { h.state = store }
}

// WithPlayer wires reaction sound playback for jarvis.audio.
func WithPlayer(player Player) Option {
	return func(h *Host) { h.player = player }
}

// WithLanguage sets the language reported in jarvis.context and used to
// resolve reaction sounds. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(h *Host) { h.language = lang }
}

// New returns a Host ready to run script commands.
func New(opts ...Option) *Host {
	h := &Host{logger: slog.Default(), language: "en"}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Run loads and executes cmd's script, returning whether the controller
// should chain into another listening cycle. It satisfies
// internal/action.Scripter.
func (h *Host) Run(ctx context.Context, cmd *catalog.Command, utterance string, slotValues map[string]slots.Value) (bool, error) {
	if cmd.ScriptPath == "" {
		return false, fmt.Errorf("%w: command %q declares no script path", ErrLoadFailed, cmd.ID)
	}
	source, err := os.ReadFile(filepath.Join(cmd.Dir, cmd.ScriptPath))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	timeout := time.Duration(cmd.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	vm := goja.New()
	stripDangerousGlobals(vm)

	level := cmd.SandboxLevel
	if level == "" {
		level = catalog.SandboxMinimal
	}

	jarvis := vm.NewObject()
	h.registerCore(vm, jarvis, time.Now().Add(timeout))
	h.registerAudio(vm, jarvis, ctx)
	h.registerContext(vm, jarvis, cmd, utterance, slotValues)
	h.registerSystem(vm, jarvis, level)

	if allowsHTTP(level) {
		h.registerHTTP(vm, jarvis, timeout)
	}
	if allowsState(level) {
		h.registerState(vm, jarvis, ctx, cmd.ID)
	}
	if allowsFS(level) {
		h.registerFS(vm, jarvis, cmd.Dir, allowsAbsolutePaths(level))
	}
	if allowsExec(level) {
		h.registerExec(vm, jarvis)
	}

	if err := vm.Set("jarvis", jarvis); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	timer := time.AfterFunc(timeout, func() { vm.Interrupt(ErrTimeout) })
	defer timer.Stop()

	result, err := vm.RunString(string(source))
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return false, ErrTimeout
		}
		return false, fmt.Errorf("%w: %v", ErrRuntimeFailure, err)
	}

	return parseResult(result), nil
}

// stripDangerousGlobals removes goja's own code-loading and process-exit
// primitives, regardless of sandbox level. goja has no filesystem or os
// access by default, so unlike mlua there is no separate io/os library to
// remove; only its dynamic-evaluation surface needs shedding.
func stripDangerousGlobals(vm *goja.Runtime) {
	for _, name := range []string{"eval", "Function", "WebAssembly"} {
		_ = vm.GlobalObject().Delete(name)
	}
}

// parseResult mirrors the original Lua engine's return-value contract: a
// table/object with a chain field, a bare boolean, or nothing (defaults to
// chain=true).
func parseResult(v goja.Value) bool {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return true
	}
	if b, ok := v.Export().(bool); ok {
		return b
	}
	if obj, ok := v.(*goja.Object); ok {
		chainVal := obj.Get("chain")
		if chainVal != nil && !goja.IsUndefined(chainVal) {
			if b, ok := chainVal.Export().(bool); ok {
				return b
			}
		}
	}
	return true
}

func (h *Host) registerCore(vm *goja.Runtime, jarvis *goja.Object, deadline time.Time) {
	jarvis.Set("log", func(level, message string) {
		switch level {
		case "debug":
			h.logger.Debug(message, "source", "script")
		case "warn":
			h.logger.Warn(message, "source", "script")
		case "error":
			h.logger.Error(message, "source", "script")
		default:
			h.logger.Info(message, "source", "script")
		}
	})
	jarvis.Set("print", func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.String()
		}
		h.logger.Info(fmt.Sprint(args...), "source", "script")
		return goja.Undefined()
	})
	// sleep is chunked so the command's timeout is not stalled behind one
	// long time.Sleep: vm.Interrupt only takes effect between JS
	// instructions, so a sleep past the deadline returns early and the
	// pending interrupt fires on the script's next instruction.
	jarvis.Set("sleep", func(ms int64) {
		remaining := time.Duration(ms) * time.Millisecond
		for remaining > 0 {
			if !time.Now().Before(deadline) {
				return
			}
			step := 50 * time.Millisecond
			if step > remaining {
				step = remaining
			}
			time.Sleep(step)
			remaining -= step
		}
	})
	jarvis.Set("speak", func(text string) {
		h.logger.Info("speak", "text", text, "source", "script")
	})
}

func (h *Host) registerContext(vm *goja.Runtime, jarvis *goja.Object, cmd *catalog.Command, utterance string, slotValues map[string]slots.Value) {
	now := time.Now()

	slotObj := vm.NewObject()
	for name, v := range slotValues {
		if v.IsNumber {
			slotObj.Set(name, v.Number)
		} else {
			slotObj.Set(name, v.Text)
		}
	}

	timeObj := vm.NewObject()
	timeObj.Set("year", now.Format("2006"))
	timeObj.Set("month", now.Format("01"))
	timeObj.Set("day", now.Format("02"))
	timeObj.Set("hour", now.Format("15"))
	timeObj.Set("minute", now.Format("04"))
	timeObj.Set("second", now.Format("05"))
	timeObj.Set("weekday", now.Weekday().String())
	timeObj.Set("timestamp", now.Unix())

	ctxObj := vm.NewObject()
	ctxObj.Set("phrase", utterance)
	ctxObj.Set("command_id", cmd.ID)
	ctxObj.Set("command_path", cmd.Dir)
	ctxObj.Set("language", h.language)
	ctxObj.Set("time", timeObj)
	ctxObj.Set("slots", slotObj)

	jarvis.Set("context", ctxObj)
}
