package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agalue/jarvis-voice/internal/audio"
	"github.com/agalue/jarvis-voice/internal/catalog"
	"github.com/agalue/jarvis-voice/internal/observe"
	"github.com/agalue/jarvis-voice/internal/script"
	"github.com/agalue/jarvis-voice/internal/slots"
)

// handleWaitingForVoice buffers frames in the wake pre-roll ring until the
// preprocessor flags voice onset, then flushes the ring (including the
// triggering frame) through the wake recognizer and the speech recognizer
// together, since from this point on every frame is dual-fed.
func (c *Controller) handleWaitingForVoice(ctx context.Context, p audio.ProcessedFrame) {
	c.wakeRing.Push(frameAsAudio(p))
	if !p.IsVoice {
		return
	}

	c.lastVoiceAt = c.now()
	c.setState(StateVoiceActive)

	for _, f := range c.wakeRing.DrainAll() {
		if c.State() != StateVoiceActive {
			break // wake already fired during replay and moved us into Listening
		}
		c.acceptCmdWaveform(ctx, f.Samples)
		c.feedWakeSamples(ctx, f.Samples)
	}
}

// handleVoiceActive dual-feeds every frame to the wake and speech
// recognizers, watching for a wake detection or a silence timeout back to
// StateWaitingForVoice.
func (c *Controller) handleVoiceActive(ctx context.Context, p audio.ProcessedFrame) {
	now := c.now()
	if p.IsVoice {
		c.lastVoiceAt = now
	}

	c.acceptCmdWaveform(ctx, p.Samples) // warm C4; any finalization here is discarded, see acceptCmdWaveform
	if c.feedWakeSamples(ctx, p.Samples) {
		return
	}

	if now.Sub(c.lastVoiceAt) > c.cfg.WakeSilenceTimeout {
		c.resetWakeMode()
	}
}

// handleListeningWaitingForVoice buffers frames in the command pre-roll ring
// until voice onset, then flushes it into the speech recognizer. Silence or
// total-duration timeouts here return all the way to idle, since no command
// utterance has started.
func (c *Controller) handleListeningWaitingForVoice(ctx context.Context, p audio.ProcessedFrame) {
	now := c.now()
	if now.Sub(c.commandStartedAt) > c.cfg.CommandTotalTimeout || now.Sub(c.lastVoiceAt) > c.cfg.CommandSilenceTimeout {
		c.toIdle(ctx)
		return
	}

	c.cmdRing.Push(frameAsAudio(p))
	if !p.IsVoice {
		return
	}

	c.lastVoiceAt = now
	c.voiceSeenSinceWake = true
	c.setState(StateListeningVoiceActive)

	for _, f := range c.cmdRing.DrainAll() {
		if c.State() != StateListeningVoiceActive {
			break // finalized mid-replay; onCommandFinalize already moved the state on
		}
		text, fin := c.acceptCmdWaveform(ctx, f.Samples)
		if fin {
			c.onCommandFinalize(ctx, text)
		}
	}
}

// handleListeningVoiceActive streams frames into the speech recognizer while
// a command utterance is being spoken. A short grace window right after wake
// detection ("sniffing") tolerates silence before the user has said anything,
// falling back to waiting for a fresh onset rather than timing out the whole
// listening session.
func (c *Controller) handleListeningVoiceActive(ctx context.Context, p audio.ProcessedFrame) {
	now := c.now()
	if p.IsVoice {
		c.lastVoiceAt = now
		c.voiceSeenSinceWake = true
		c.sniffUntil = time.Time{}
	}

	text, fin := c.acceptCmdWaveform(ctx, p.Samples)
	if fin {
		c.onCommandFinalize(ctx, text)
		return
	}

	if !c.voiceSeenSinceWake && !c.sniffUntil.IsZero() && now.After(c.sniffUntil) {
		c.sniffUntil = time.Time{}
		c.cmdSession.Reset()
		c.setState(StateListeningWaitingForVoice)
		return
	}

	if now.Sub(c.commandStartedAt) > c.cfg.CommandTotalTimeout || now.Sub(c.lastVoiceAt) > c.cfg.CommandSilenceTimeout {
		c.toIdle(ctx)
	}
}

// feedWakeSamples runs one frame through the wake recognizer and, if a wake
// phrase was matched, drives the activation transition. It returns true if
// this call moved the controller into a Listening state, so callers know not
// to keep treating the frame as still belonging to wake/voice-active mode.
func (c *Controller) feedWakeSamples(ctx context.Context, samples []int16) bool {
	start := time.Now()
	detected, text, confidence, err := c.wakeSession.AcceptWaveform(samples)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.WakeDetectDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.RecordProviderError(ctx, "wake", "detect")
		}
		c.cfg.Logger.Warn("session: wake recognition error", "error", err)
		return false
	}
	if !detected {
		return false
	}
	if text == "" {
		// A decode cycle completed without matching a candidate phrase; the
		// recognizer has already reset its own internal state.
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.RecordWakeDetection(ctx, "rejected")
		}
		return false
	}

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordWakeDetection(ctx, "accepted")
	}
	c.cfg.Logger.Debug("session: wake word detected", "text", text, "confidence", confidence)
	c.onWakeDetected(ctx)
	return true
}

// acceptCmdWaveform runs one frame through the speech recognizer and records
// its latency. Callers in StateVoiceActive (dual feed, before a wake
// activation) discard any finalized text: the command pipeline only acts on
// a finalization once the controller has entered a Listening state.
func (c *Controller) acceptCmdWaveform(ctx context.Context, samples []int16) (text string, finalized bool) {
	start := time.Now()
	text, finalized, err := c.cmdSession.AcceptWaveform(samples)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.SpeechRecognizeDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.RecordProviderError(ctx, "speech", "recognize")
		}
		c.cfg.Logger.Warn("session: speech recognition error", "error", err)
		return "", false
	}
	if finalized && c.State() == StateVoiceActive {
		c.cfg.Logger.Debug("session: speech finalized before wake activation, discarding", "text", truncate(text, 60))
		return text, false
	}
	return text, finalized
}

// onWakeDetected announces the activation, plays the reply reaction, and
// moves into Listening. Per the dual-feed rule only the wake session resets
// here: the speech session keeps whatever it has already accumulated.
func (c *Controller) onWakeDetected(ctx context.Context) {
	cid := observe.CorrelationID(ctx)
	c.emit(Event{Kind: EventWakeWordDetected, CorrelationID: cid})
	c.playReaction(ctx, reactionReply)

	c.wakeSession.Reset()
	c.wakeRing.Clear()

	c.justEnteredListening = true
	c.voiceSeenSinceWake = false
	c.sniffUntil = c.now().Add(c.cfg.SniffWindow)
	c.commandStartedAt = c.now()
	c.lastVoiceAt = c.now()

	c.setState(StateListeningVoiceActive)
	c.emit(Event{Kind: EventListening, CorrelationID: cid})
}

// resetWakeMode returns to StateWaitingForVoice after a pre-activation
// silence timeout. No event is emitted: nothing was ever announced to the
// outside world for this quiet stretch.
func (c *Controller) resetWakeMode() {
	c.wakeSession.Reset()
	c.cmdSession.Reset()
	c.wakeRing.Clear()
	c.setState(StateWaitingForVoice)
}

// onCommandFinalize applies the wake-phrase-repetition rule and the filler
// filter to a finalized speech-recognizer result, then either dispatches it
// as a command or loops back to wait for another utterance.
func (c *Controller) onCommandFinalize(ctx context.Context, text string) {
	firstAfterActivation := c.justEnteredListening
	c.justEnteredListening = false

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		c.backToListeningWaitingForVoice()
		return
	}

	command := trimmed
	if stripped, matchedWake := stripWakePhrase(trimmed, c.cfg.WakePhrases); matchedWake {
		if stripped == "" {
			// A bare wake repetition with no command attached. The first one
			// after an activation is leftover dual-feed audio from before the
			// activation and is discarded silently; a later one is the user
			// re-arming the listening window, acknowledged with a reply.
			if !firstAfterActivation {
				c.playReaction(ctx, reactionReply)
			}
			c.backToListeningWaitingForVoice()
			return
		}
		// Wake word and command in one breath: dispatch the remainder.
		command = stripped
	}

	filtered := filterPhrase(command, c.cfg.FillerWords)
	if len([]rune(filtered)) < c.cfg.MinUtteranceLength {
		c.backToListeningWaitingForVoice()
		return
	}

	c.dispatch(ctx, trimmed, filtered, true)
}

// backToListeningWaitingForVoice discards the current finalized result and
// re-arms the speech recognizer for another attempt within the same
// listening session, without emitting any event.
func (c *Controller) backToListeningWaitingForVoice() {
	c.cmdSession.Reset()
	c.cmdRing.Clear()
	c.setState(StateListeningWaitingForVoice)
}

// chainListening re-arms the speech recognizer for a follow-up command after
// a chaining action, starting a fresh command timeout budget.
func (c *Controller) chainListening(ctx context.Context) {
	cid := observe.CorrelationID(ctx)
	c.cmdSession.Reset()
	c.cmdRing.Clear()
	c.commandStartedAt = c.now()
	c.lastVoiceAt = c.now()
	c.voiceSeenSinceWake = false
	c.justEnteredListening = false
	c.setState(StateListeningWaitingForVoice)
	c.emit(Event{Kind: EventListening, CorrelationID: cid})
}

// toIdle resets both recognizer sessions and every ring buffer and returns
// to the top-level waiting state, emitting the Idle event that closes out
// one activation cycle.
func (c *Controller) toIdle(ctx context.Context) {
	cid := observe.CorrelationID(ctx)
	c.wakeSession.Reset()
	c.cmdSession.Reset()
	c.wakeRing.Clear()
	c.cmdRing.Clear()
	c.justEnteredListening = false
	c.voiceSeenSinceWake = false
	c.sniffUntil = time.Time{}
	c.setState(StateWaitingForVoice)
	c.emit(Event{Kind: EventIdle, CorrelationID: cid})
}

// handleTextCommand runs the full intent pipeline for an externally
// submitted command, independent of the voice state machine's current
// state. It never chains: every text command concludes with exactly one
// Idle event, matching the one-shot nature of an IPC-submitted command.
func (c *Controller) handleTextCommand(ctx context.Context, text string) {
	cid := observe.CorrelationID(ctx)
	trimmed := strings.TrimSpace(text)
	c.emit(Event{Kind: EventSpeechRecognized, Text: trimmed, CorrelationID: cid})

	id, success, _, notFound, execErr := c.runIntentPipeline(ctx, trimmed)
	c.reportOutcome(ctx, cid, id, success, notFound, execErr)
	c.emit(Event{Kind: EventIdle, CorrelationID: cid})
}

// dispatch runs the intent pipeline for a recognized voice command and
// drives the resulting state transition: idle on failure or a non-chaining
// action, back into listening on a chaining action. spoken is the full
// utterance as recognized (announced on the event stream); command is the
// wake-stripped, filler-filtered text the intent pipeline resolves.
func (c *Controller) dispatch(ctx context.Context, spoken, command string, allowChain bool) {
	cid := observe.CorrelationID(ctx)
	c.emit(Event{Kind: EventSpeechRecognized, Text: spoken, CorrelationID: cid})

	c.setState(StateExecuting)
	id, success, chain, notFound, execErr := c.runIntentPipeline(ctx, command)
	c.reportOutcome(ctx, cid, id, success, notFound, execErr)

	if success && allowChain && chain {
		c.chainListening(ctx)
		return
	}
	c.toIdle(ctx)
}

// reportOutcome plays the reaction sound and emits the command-level events
// for one dispatch, without touching controller state.
func (c *Controller) reportOutcome(ctx context.Context, cid, id string, success, notFound bool, execErr error) {
	switch {
	case notFound:
		c.playReaction(ctx, reactionNotFound)
		c.emit(Event{Kind: EventError, Message: "no matching command", CorrelationID: cid})
	case execErr != nil:
		c.playReaction(ctx, reactionError)
		c.emit(Event{Kind: EventCommandExecuted, CommandID: id, Success: false, CorrelationID: cid})
		c.emit(Event{Kind: EventError, Message: execErr.Error(), CorrelationID: cid})
	default:
		c.playReaction(ctx, reactionOK)
		c.emit(Event{Kind: EventCommandExecuted, CommandID: id, Success: success, CorrelationID: cid})
	}
}

// runIntentPipeline resolves text to a command (embedding classifier first,
// fuzzy match on low confidence or classifier absence) and executes it.
// notFound is true only when neither resolver produced a known command id;
// execErr is the executor's own error, distinct from a resolution miss.
func (c *Controller) runIntentPipeline(ctx context.Context, text string) (id string, success, chain, notFound bool, execErr error) {
	ctx, span := observe.StartSpan(ctx, "session.execute_command")
	defer span.End()

	start := time.Now()
	cmd := c.resolveCommand(ctx, text)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.IntentClassifyDuration.Record(ctx, time.Since(start).Seconds())
	}
	if cmd == nil {
		return "", false, false, true, nil
	}

	var slotValues map[string]slots.Value
	if c.cfg.Slots != nil {
		slotStart := time.Now()
		slotValues = c.cfg.Slots.Extract(ctx, cmd, text)
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.SlotExtractDuration.Record(ctx, time.Since(slotStart).Seconds())
		}
	}

	execStart := time.Now()
	result, err := c.cfg.Executor.Execute(ctx, cmd, text, slotValues)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.CommandExecutionDuration.Record(ctx, time.Since(execStart).Seconds())
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordCommandDispatch(ctx, cmd.ID, outcome)
		if errors.Is(err, script.ErrTimeout) {
			c.cfg.Metrics.RecordScriptTimeout(ctx, cmd.ID)
		}
	}
	if err != nil {
		return cmd.ID, false, false, false, fmt.Errorf("dispatch %q: %w", cmd.ID, err)
	}
	return cmd.ID, true, result.Chain, false, nil
}

// resolveCommand tries the embedding classifier first, falling back to
// fuzzy matching when the classifier is absent, errored, or under
// confidence threshold.
func (c *Controller) resolveCommand(ctx context.Context, text string) *catalog.Command {
	var id string
	var confidence float64
	if c.cfg.Classifier != nil {
		var err error
		id, confidence, err = c.cfg.Classifier.Classify(ctx, text)
		if err != nil {
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.RecordProviderError(ctx, "intent", "classify")
			}
			id, confidence = "", 0
		}
	}

	if id != "" && confidence >= c.cfg.IntentConfidenceThreshold {
		if cmd, ok := c.cfg.Catalog.Lookup(id); ok {
			return cmd
		}
	}

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordIntentFallback(ctx)
	}
	if c.cfg.Fuzzy != nil {
		if fid, _, ok := c.cfg.Fuzzy.Match(c.cfg.Catalog, c.cfg.Language, text); ok {
			if cmd, ok := c.cfg.Catalog.Lookup(fid); ok {
				return cmd
			}
		}
	}
	return nil
}

// playReaction plays the named reaction sound, logging but not propagating
// a failure: a missing or broken voice pack never blocks command dispatch.
func (c *Controller) playReaction(ctx context.Context, kind string) {
	if c.cfg.Player == nil {
		return
	}
	if err := c.cfg.Player.PlayReaction(ctx, c.cfg.Language, kind); err != nil {
		c.cfg.Logger.Warn("session: play reaction", "kind", kind, "error", err)
	}
}
