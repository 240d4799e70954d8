// Package voicepack loads voice pack manifests and resolves + plays the
// reaction sounds a voice pack declares for each supported language. A
// voice pack is a directory tree: one manifest per voice, one subdirectory
// per language holding that language's sound files.
package voicepack

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// manifestFile is the expected filename inside every voice directory.
const manifestFile = "voice.yaml"

// Kind names a reaction a voice pack can play. These match the reaction
// names jarvis.audio.play accepts in the script host, plus the four
// time-of-day greet variants the Player selects between whenever a greet
// is played.
type Kind string

const (
	KindGreet        Kind = "greet"
	KindGreetMorning Kind = "greet_morning"
	KindGreetDay     Kind = "greet_day"
	KindGreetEvening Kind = "greet_evening"
	KindGreetNight   Kind = "greet_night"
	KindReply        Kind = "reply"
	KindOK           Kind = "ok"
	KindNotFound     Kind = "not_found"
	KindThanks       Kind = "thanks"
	KindError        Kind = "error"
	KindGoodbye      Kind = "goodbye"
)

// Meta identifies a voice: its id, display name, author, and the
// languages it has a sound subdirectory for.
type Meta struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Author    string   `yaml:"author"`
	Languages []string `yaml:"languages"`
}

// Reactions lists, per reaction kind, the candidate sound file basenames
// (without extension) one is chosen from at random when that reaction
// plays. Any list may be empty.
type Reactions struct {
	Greet        []string `yaml:"greet"`
	GreetMorning []string `yaml:"greet_morning"`
	GreetDay     []string `yaml:"greet_day"`
	GreetEvening []string `yaml:"greet_evening"`
	GreetNight   []string `yaml:"greet_night"`
	Reply        []string `yaml:"reply"`
	OK           []string `yaml:"ok"`
	NotFound     []string `yaml:"not_found"`
	Thanks       []string `yaml:"thanks"`
	Error        []string `yaml:"error"`
	Goodbye      []string `yaml:"goodbye"`
}

// list returns the candidate names for kind, or nil if kind is unknown.
func (r Reactions) list(kind Kind) []string {
	switch kind {
	case KindGreet:
		return r.Greet
	case KindGreetMorning:
		return r.GreetMorning
	case KindGreetDay:
		return r.GreetDay
	case KindGreetEvening:
		return r.GreetEvening
	case KindGreetNight:
		return r.GreetNight
	case KindReply:
		return r.Reply
	case KindOK:
		return r.OK
	case KindNotFound:
		return r.NotFound
	case KindThanks:
		return r.Thanks
	case KindError:
		return r.Error
	case KindGoodbye:
		return r.Goodbye
	default:
		return nil
	}
}

// manifest is the on-disk shape of voice.yaml: a voice's metadata plus one
// Reactions entry per language it declares reactions for.
type manifest struct {
	Voice     Meta                 `yaml:"voice"`
	Reactions map[string]Reactions `yaml:"reactions"`
}

func loadManifestFile(path string) (*manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	var m manifest
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Voice.ID == "" {
		return nil, fmt.Errorf("manifest %q: voice.id is required", path)
	}
	return &m, nil
}
