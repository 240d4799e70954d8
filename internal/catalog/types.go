// Package catalog loads and serves the typed, immutable set of command
// records the rest of the pipeline dispatches against: C5/C6/C7/C9 all hold
// a read-only reference to the same Catalog.
package catalog

import "sync"

// Kind identifies how an Executor dispatches a Command.
type Kind string

const (
	KindNoop        Kind = "noop"
	KindStopChain   Kind = "stop-chain"
	KindTerminate   Kind = "terminate"
	KindExternalExe Kind = "external-exe"
	KindShell       Kind = "shell"
	KindScript      Kind = "script"
)

// SandboxLevel bounds a script command's access to host capabilities.
type SandboxLevel string

const (
	SandboxMinimal  SandboxLevel = "minimal"
	SandboxStandard SandboxLevel = "standard"
	SandboxFull     SandboxLevel = "full"
)

// SlotSpec describes how a command's slot should be filled from an
// utterance: a free-form entity label the extractor matches semantically,
// plus optional context words that help template-based disambiguation.
type SlotSpec struct {
	EntityLabel  string   `yaml:"entity"`
	ContextHints []string `yaml:"context"`
}

// Command is an immutable, validated command record as loaded from a
// manifest file. Localized phrase/sound lookups are resolved and memoized
// per language by the Command's own methods.
type Command struct {
	// ID uniquely identifies the command across the whole catalog.
	ID string `yaml:"id"`

	// Kind selects the Action executor dispatch path.
	Kind Kind `yaml:"type"`

	Description string `yaml:"description,omitempty"`

	// LocalizedPhrases maps a language code to its ordered list of
	// trigger phrases for this command.
	LocalizedPhrases map[string][]string `yaml:"phrases"`

	// LocalizedSounds maps a language code to its ordered list of
	// reaction sound identifiers played on success.
	LocalizedSounds map[string][]string `yaml:"sounds"`

	// Slots maps a slot name to its extraction spec.
	Slots map[string]SlotSpec `yaml:"slots"`

	// SandboxLevel applies only to KindScript commands.
	SandboxLevel SandboxLevel `yaml:"sandbox"`

	// TimeoutMs bounds a script command's execution wall time.
	TimeoutMs int `yaml:"timeout_ms"`

	// ExePath and ExeArgs apply to KindExternalExe.
	ExePath string   `yaml:"exe_path,omitempty"`
	ExeArgs []string `yaml:"exe_args,omitempty"`

	// ShellCommand applies to KindShell: the literal command line passed
	// to the platform shell.
	ShellCommand string `yaml:"shell_command,omitempty"`

	// ScriptPath applies to KindScript: the script source file relative
	// to the command's directory.
	ScriptPath string `yaml:"script,omitempty"`

	// Dir is the command's directory on disk, populated by the loader
	// (never present in the manifest itself).
	Dir string `yaml:"-"`

	mu          sync.RWMutex
	phraseCache map[string][]string
	soundCache  map[string][]string
}
