// Package session implements the controller that owns the assistant's
// listening state machine: it drives the wake recognizer and the free-form
// speech recognizer off one shared stream of preprocessed audio frames,
// decides when to classify an utterance into a command, and dispatches the
// result. It is the one component that sees the whole pipeline end to end;
// everything else in the tree is a stage it calls into.
package session

import (
	"context"

	"github.com/agalue/jarvis-voice/internal/action"
	"github.com/agalue/jarvis-voice/internal/catalog"
	"github.com/agalue/jarvis-voice/internal/slots"
)

// State names a node of the controller's state machine. The spec's "Idle"
// label does not get its own value here: it is the top-level
// StateWaitingForVoice, re-entered after a wake activation resolves. Idle
// events are emitted at those re-entry points rather than tracked as a
// separate state.
type State int

const (
	// StateWaitingForVoice is the top-level state: both the wake ring
	// buffer and the wake recognizer are armed, waiting for the first
	// sign of speech.
	StateWaitingForVoice State = iota

	// StateVoiceActive holds while speech is ongoing before a wake
	// activation. Every frame is dual-fed to both the wake recognizer and
	// the speech recognizer so no audio is lost if the utterance turns
	// out to contain the wake phrase and a command in one breath.
	StateVoiceActive

	// StateListeningWaitingForVoice is the command-mode analogue of
	// StateWaitingForVoice: armed after a wake activation, waiting for
	// the user to start speaking a command.
	StateListeningWaitingForVoice

	// StateListeningVoiceActive holds while a command utterance is being
	// spoken, feeding the speech recognizer.
	StateListeningVoiceActive

	// StateExecuting is set for the duration of a dispatched command's
	// synchronous execution. No frames are expected to arrive while it is
	// held, since the capture pipeline calls Feed synchronously from the
	// same goroutine that is currently inside Execute.
	StateExecuting

	// StateStopping is terminal: the controller has observed a stop
	// signal and is no longer accepting frames or text commands.
	StateStopping
)

// String renders the state the way it is named in the IPC/metrics surface.
func (s State) String() string {
	switch s {
	case StateWaitingForVoice:
		return "waiting_for_voice"
	case StateVoiceActive:
		return "voice_active"
	case StateListeningWaitingForVoice:
		return "listening_waiting_for_voice"
	case StateListeningVoiceActive:
		return "listening_voice_active"
	case StateExecuting:
		return "executing"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Event kinds, matching the outbound IPC event names verbatim.
const (
	EventWakeWordDetected = "wake_word_detected"
	EventListening        = "listening"
	EventSpeechRecognized = "speech_recognized"
	EventCommandExecuted  = "command_executed"
	EventIdle             = "idle"
	EventError            = "error"
	EventStarted          = "started"
	EventStopping         = "stopping"
)

// Reaction kinds played at the points spec names: a reply on wake, and one
// of ok/error/not_found on command resolution. These are the same strings
// internal/voicepack.Kind and internal/script's reaction constants use; the
// controller only needs the string, not either package's type.
const (
	reactionReply    = "reply"
	reactionOK       = "ok"
	reactionError    = "error"
	reactionNotFound = "not_found"
)

// Event is one outbound notification the controller emits as it moves
// through the state machine. The ipc package serializes these onto the
// protocol's tagged-object wire frames; tests can also consume them
// directly as the state machine's observable behavior.
type Event struct {
	Kind          string
	Text          string
	CommandID     string
	Success       bool
	Message       string
	CorrelationID string
}

// EventSink receives every event the controller emits, in emission order.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a plain function to an EventSink.
type EventSinkFunc func(Event)

// Emit calls f.
func (f EventSinkFunc) Emit(e Event) { f(e) }

// Classifier resolves free text to a command id by embedding similarity.
// Satisfied by *internal/intent.Classifier; declared locally so the
// controller does not need to depend on the embeddings stack directly.
type Classifier interface {
	Classify(ctx context.Context, text string) (id string, confidence float64, err error)
}

// FuzzyMatcher is the character/word fallback used when the Classifier's
// confidence falls below the configured threshold. Satisfied by
// *internal/intent.FuzzyMatcher.
type FuzzyMatcher interface {
	Match(cat *catalog.Catalog, lang, text string) (id string, score float64, ok bool)
}

// SlotExtractor resolves a command's declared slots from an utterance.
// Satisfied by *internal/slots.Extractor.
type SlotExtractor interface {
	Extract(ctx context.Context, cmd *catalog.Command, text string) map[string]slots.Value
}

// CommandExecutor dispatches a resolved command. Satisfied by
// *internal/action.Executor.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd *catalog.Command, utterance string, slotValues map[string]slots.Value) (action.Result, error)
}

// ReactionPlayer plays a named reaction sound from the active voice pack.
// Satisfied by *internal/voicepack.Player and *internal/script.Host's own
// Player dependency.
type ReactionPlayer interface {
	PlayReaction(ctx context.Context, lang, kind string) error
}
