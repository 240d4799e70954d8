package script

import (
	"context"

	"github.com/dop251/goja"
)

// Reaction kinds a script can request via jarvis.audio.play, matching the
// voice pack's reaction-kind enum.
const (
	reactionOK       = "ok"
	reactionReply    = "reply"
	reactionGreet    = "greet"
	reactionNotFound = "not_found"
	reactionError    = "error"
	reactionGoodbye  = "goodbye"
	reactionThanks   = "thanks"
)

func (h *Host) registerAudio(vm *goja.Runtime, jarvis *goja.Object, ctx context.Context) {
	audio := vm.NewObject()

	play := func(kind string) bool {
		if h.player == nil {
			return false
		}
		if err := h.player.PlayReaction(ctx, h.language, kind); err != nil {
			h.logger.Warn("script audio.play failed", "kind", kind, "err", err)
			return false
		}
		return true
	}

	audio.Set("play", func(reaction string) bool {
		switch reaction {
		case reactionOK, reactionReply, reactionGreet, reactionNotFound, reactionError, reactionGoodbye, reactionThanks:
			return play(reaction)
		default:
			h.logger.Warn("script audio.play: unknown reaction", "reaction", reaction)
			return false
		}
	})
	audio.Set("play_ok", func() bool { return play(reactionOK) })
	audio.Set("play_reply", func() bool { return play(reactionReply) })
	audio.Set("play_error", func() bool { return play(reactionError) })
	audio.Set("play_not_found", func() bool { return play(reactionNotFound) })
	audio.Set("play_greet", func() bool { return play(reactionGreet) })
	audio.Set("play_goodbye", func() bool { return play(reactionGoodbye) })

	jarvis.Set("audio", audio)
}
