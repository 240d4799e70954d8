package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// manifestFile is the expected filename inside every command directory.
const manifestFile = "command.yaml"

// Catalog holds every command loaded from a commands directory. It is
// immutable after Load: readers share the same instance without locking,
// except for the per-command localization caches which guard themselves.
type Catalog struct {
	commands []*Command
	byID     map[string]*Command
}

// Load parses one manifest per immediate subdirectory of dir. Subdirectories
// without a command.yaml are skipped. Returns an error if dir cannot be read,
// if any manifest fails to parse, or if any command id is duplicated.
func Load(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: read commands directory %q: %w", dir, err)
	}

	c := &Catalog{byID: make(map[string]*Command)}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		cmdDir := filepath.Join(dir, entry.Name())
		manifestPath := filepath.Join(cmdDir, manifestFile)

		if _, err := os.Stat(manifestPath); err != nil {
			continue
		}

		cmd, err := loadManifest(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("catalog: load %q: %w", manifestPath, err)
		}
		cmd.Dir = cmdDir

		if err := validate(cmd); err != nil {
			return nil, fmt.Errorf("catalog: validate %q: %w", manifestPath, err)
		}
		if _, exists := c.byID[cmd.ID]; exists {
			return nil, fmt.Errorf("catalog: duplicate command id %q (in %q)", cmd.ID, cmdDir)
		}

		c.commands = append(c.commands, cmd)
		c.byID[cmd.ID] = cmd
	}

	if len(c.commands) == 0 {
		return nil, fmt.Errorf("catalog: no commands found under %q", dir)
	}
	return c, nil
}

func loadManifest(path string) (*Command, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	var cmd Command
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cmd); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &cmd, nil
}

func validate(cmd *Command) error {
	if cmd.ID == "" {
		return fmt.Errorf("command id must not be empty")
	}
	switch cmd.Kind {
	case KindNoop, KindStopChain, KindTerminate, KindExternalExe, KindShell, KindScript:
	default:
		return fmt.Errorf("command %q: unknown kind %q", cmd.ID, cmd.Kind)
	}
	if cmd.Kind == KindScript {
		switch cmd.SandboxLevel {
		case SandboxMinimal, SandboxStandard, SandboxFull:
		case "":
			cmd.SandboxLevel = SandboxMinimal
		default:
			return fmt.Errorf("command %q: unknown sandbox level %q", cmd.ID, cmd.SandboxLevel)
		}
		if cmd.ScriptPath == "" {
			return fmt.Errorf("command %q: script command missing script path", cmd.ID)
		}
	}
	return nil
}

// All returns every loaded command, in load order.
func (c *Catalog) All() []*Command {
	return c.commands
}

// Lookup returns the command with the given id.
func (c *Catalog) Lookup(id string) (*Command, bool) {
	cmd, ok := c.byID[id]
	return cmd, ok
}

// ContentHash returns a stable hex-encoded SHA-256 digest of the active
// language plus every command's (id, resolved phrase list) pair, sorted by
// id. Identical inputs always produce the same hash; it is the cache key C5
// uses to decide whether cached intent vectors are still valid.
func (c *Catalog) ContentHash(lang string) string {
	type entry struct {
		id      string
		phrases []string
	}
	entries := make([]entry, 0, len(c.commands))
	for _, cmd := range c.commands {
		entries = append(entries, entry{id: cmd.ID, phrases: cmd.Phrases(lang)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	h := sha256.New()
	h.Write([]byte(lang))
	h.Write([]byte{'|'})
	for _, e := range entries {
		h.Write([]byte(e.id))
		for _, p := range e.phrases {
			h.Write([]byte(p))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Phrases returns the command's trigger phrases resolved for lang, falling
// back to "en" then the first available language if lang has none. The
// result is memoized.
func (cmd *Command) Phrases(lang string) []string {
	return cmd.resolveLocalized(&cmd.phraseCache, cmd.LocalizedPhrases, lang)
}

// Sounds returns the command's reaction sound identifiers resolved for
// lang, with the same fallback and memoization rule as Phrases.
func (cmd *Command) Sounds(lang string) []string {
	return cmd.resolveLocalized(&cmd.soundCache, cmd.LocalizedSounds, lang)
}

func (cmd *Command) resolveLocalized(cache *map[string][]string, source map[string][]string, lang string) []string {
	cmd.mu.RLock()
	if *cache != nil {
		if v, ok := (*cache)[lang]; ok {
			cmd.mu.RUnlock()
			return v
		}
	}
	cmd.mu.RUnlock()

	resolved := resolveFallback(source, lang)

	cmd.mu.Lock()
	if *cache == nil {
		*cache = make(map[string][]string)
	}
	(*cache)[lang] = resolved
	cmd.mu.Unlock()

	return resolved
}

// resolveFallback implements the exact language → "en" → first-available
// fallback order.
func resolveFallback(source map[string][]string, lang string) []string {
	if v, ok := source[lang]; ok {
		return v
	}
	if v, ok := source["en"]; ok {
		return v
	}
	keys := make([]string, 0, len(source))
	for k := range source {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		return source[keys[0]]
	}
	return nil
}
