package voicepack

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// playbackSampleRate and playbackChannels describe the format oto's
// context is opened with. Voice pack sound files are authored at this
// rate; files at other rates will play back at the wrong pitch/speed,
// same tradeoff the original voice player accepts.
const (
	playbackSampleRate = 24000
	playbackChannels   = 1
)

// Player plays reaction sounds from the active voice of a Manager. It
// satisfies internal/script.Player so scripts can trigger jarvis.audio.play
// and its convenience wrappers, and the session controller calls it
// directly at the transitions spec names (reply on wake, ok/not_found/error
// on command completion).
type Player struct {
	manager *Manager
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	ctx    *oto.Context
	active *oto.Player
}

// Option configures a Player.
type Option func(*Player)

// WithLogger overrides the logger playback failures are logged through.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Player) { p.logger = logger }
}

// NewPlayer opens the system audio output device and returns a Player
// backed by manager. Opening the device is itself an
// initialization-degradable failure: callers should log and continue
// without a player rather than abort startup.
func NewPlayer(manager *Manager, opts ...Option) (*Player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   playbackSampleRate,
		ChannelCount: playbackChannels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("voicepack: open audio output: %w", err)
	}
	<-ready

	p := &Player{manager: manager, logger: slog.Default(), now: time.Now, ctx: ctx}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// PlayReaction picks a random sound for kind in lang from the active
// voice and plays it synchronously. A greet request tries the matching
// time-of-day list first, falling back to the generic greet list if that
// list is empty or unresolved, mirroring the original voice player's
// greeting selection.
func (p *Player) PlayReaction(ctx context.Context, lang, kind string) error {
	voice := p.manager.Active()
	if voice == nil {
		return fmt.Errorf("voicepack: no active voice")
	}

	path, ok := p.resolve(voice, lang, Kind(kind))
	if !ok {
		return fmt.Errorf("voicepack: no sound resolved for voice %q lang %q kind %q", voice.Meta.ID, lang, kind)
	}
	return p.playFile(ctx, path)
}

// resolve implements the greet time-of-day fallback: KindGreet first
// consults the time-specific list, and falls back to the plain greet list
// when that list is empty or yields no resolvable sound.
func (p *Player) resolve(voice *Voice, lang string, kind Kind) (string, bool) {
	if kind == KindGreet {
		if path, ok := p.resolveFromList(voice, lang, p.timeOfDayGreetKind()); ok {
			return path, ok
		}
	}
	return p.resolveFromList(voice, lang, kind)
}

func (p *Player) resolveFromList(voice *Voice, lang string, kind Kind) (string, bool) {
	names := voice.soundsFor(lang, kind)
	if len(names) == 0 {
		return "", false
	}
	name := names[rand.Intn(len(names))]
	return voice.resolveSound(lang, name)
}

// timeOfDayGreetKind buckets the current hour into one of the four
// time-of-day greet kinds.
func (p *Player) timeOfDayGreetKind() Kind {
	hour := p.now().Hour()
	switch {
	case hour >= 5 && hour < 11:
		return KindGreetMorning
	case hour >= 11 && hour < 17:
		return KindGreetDay
	case hour >= 17 && hour < 21:
		return KindGreetEvening
	default:
		return KindGreetNight
	}
}

// playFile decodes and plays a single sound file synchronously, blocking
// until playback completes or ctx is canceled. Only WAV decodes; mp3 and
// ogg files resolve (so catalog/voice-pack authoring tooling can rely on
// the full extension order) but are logged and skipped at playback time,
// since no mp3/ogg decoder is wired into this build.
func (p *Player) playFile(ctx context.Context, path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		p.logger.Warn("voicepack: playback of non-wav sound not supported, skipping", "path", path)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("voicepack: read %q: %w", path, err)
	}
	pcm, err := extractWAVPCM(data)
	if err != nil {
		return fmt.Errorf("voicepack: decode %q: %w", path, err)
	}

	player := p.ctx.NewPlayer(bytes.NewReader(pcm))
	p.mu.Lock()
	p.active = player
	p.mu.Unlock()

	player.Play()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			p.mu.Lock()
			p.active = nil
			p.mu.Unlock()
			return player.Close()
		case <-time.After(10 * time.Millisecond):
		}
	}

	p.mu.Lock()
	p.active = nil
	p.mu.Unlock()
	return player.Close()
}

// Stop interrupts the currently playing sound, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	if active != nil {
		active.Pause()
	}
}

// extractWAVPCM strips the RIFF/WAVE header and returns raw PCM bytes.
func extractWAVPCM(wav []byte) ([]byte, error) {
	if len(wav) < 44 {
		return nil, errors.New("wav data too short")
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, errors.New("not a valid wav file")
	}

	pos := 12
	for pos < len(wav)-8 {
		chunkID := string(wav[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))

		if chunkID == "data" {
			start := pos + 8
			end := start + chunkSize
			if end > len(wav) {
				end = len(wav)
			}
			return wav[start:end], nil
		}

		pos += 8 + chunkSize
		if chunkSize%2 != 0 {
			pos++
		}
	}
	return nil, errors.New("data chunk not found in wav")
}
