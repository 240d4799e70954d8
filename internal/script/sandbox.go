package script

import "github.com/agalue/jarvis-voice/internal/catalog"

// The three sandbox tiers gate which jarvis.* capabilities a script
// command's runtime exposes, per the capability matrix a command's
// SandboxLevel selects into. Always present regardless of tier: log,
// print, sleep, the read-only context object, audio.play and its
// convenience wrappers, system.open, system.notify, and clipboard read.

func allowsHTTP(level catalog.SandboxLevel) bool {
	return level == catalog.SandboxStandard || level == catalog.SandboxFull
}

func allowsState(level catalog.SandboxLevel) bool {
	return level == catalog.SandboxStandard || level == catalog.SandboxFull
}

func allowsFS(level catalog.SandboxLevel) bool {
	return level == catalog.SandboxStandard || level == catalog.SandboxFull
}

func allowsAbsolutePaths(level catalog.SandboxLevel) bool {
	return level == catalog.SandboxFull
}

func allowsExec(level catalog.SandboxLevel) bool {
	return level == catalog.SandboxFull
}

func allowsClipboardWrite(level catalog.SandboxLevel) bool {
	return level == catalog.SandboxFull
}
