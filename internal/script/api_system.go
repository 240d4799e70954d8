package script

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/atotto/clipboard"
	"github.com/dop251/goja"

	"github.com/agalue/jarvis-voice/internal/catalog"
)

// registerSystem exposes jarvis.system.open/notify/clipboard.get always,
// and jarvis.system.clipboard.set only at the full tier. jarvis.system.exec
// is registered separately by registerExec, gated by allowsExec.
func (h *Host) registerSystem(vm *goja.Runtime, jarvis *goja.Object, level catalog.SandboxLevel) {
	system := vm.NewObject()

	system.Set("open", func(target string) bool {
		var c *exec.Cmd
		switch runtime.GOOS {
		case "windows":
			c = exec.Command("cmd", "/C", "start", "", target)
		case "darwin":
			c = exec.Command("open", target)
		default:
			c = exec.Command("xdg-open", target)
		}
		if err := c.Start(); err != nil {
			h.logger.Warn("script system.open failed", "target", target, "err", err)
			return false
		}
		return true
	})

	system.Set("notify", func(title, message string) bool {
		var c *exec.Cmd
		switch runtime.GOOS {
		case "windows":
			c = exec.Command("msg", "*", "/time:10", fmt.Sprintf("%s: %s", title, message))
		case "darwin":
			script := fmt.Sprintf(`display notification %q with title %q`, message, title)
			c = exec.Command("osascript", "-e", script)
		default:
			c = exec.Command("notify-send", title, message)
		}
		if err := c.Start(); err != nil {
			h.logger.Warn("script system.notify failed", "err", err)
			return false
		}
		return true
	})

	clip := vm.NewObject()
	clip.Set("get", func() (string, error) {
		text, err := clipboard.ReadAll()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrIO, err)
		}
		return text, nil
	})
	if allowsClipboardWrite(level) {
		clip.Set("set", func(text string) (bool, error) {
			if err := clipboard.WriteAll(text); err != nil {
				return false, fmt.Errorf("%w: %v", ErrIO, err)
			}
			return true, nil
		})
	}
	system.Set("clipboard", clip)

	jarvis.Set("system", system)
}

// registerExec exposes jarvis.system.exec, a full-tier-only capability
// that runs a command line to completion and reports its outcome, the
// same platform-shell selection internal/action uses for shell commands.
func (h *Host) registerExec(vm *goja.Runtime, jarvis *goja.Object) {
	system := jarvis.Get("system").(*goja.Object)

	system.Set("exec", func(command string, extraArgs []string) (map[string]any, error) {
		name, args := shellInvocation(command)
		args = append(args, extraArgs...)

		c := exec.Command(name, args...)
		output, runErr := c.Output()

		exitCode := 0
		success := runErr == nil
		var stderr string
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			stderr = string(exitErr.Stderr)
		} else if runErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrIO, runErr)
		}

		return map[string]any{
			"success": success,
			"code":    exitCode,
			"stdout":  string(output),
			"stderr":  stderr,
		}, nil
	})
}

func shellInvocation(command string) (name string, args []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", command}
	}
	return "sh", []string{"-c", command}
}
