package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
)

// registerFS exposes jarvis.fs.read/read_bytes/write/append/exists/
// is_file/is_dir/list/mkdir/remove, a standard+ tier capability confined
// to commandDir unless allowAbsolute (full tier) is set.
func (h *Host) registerFS(vm *goja.Runtime, jarvis *goja.Object, commandDir string, allowAbsolute bool) {
	resolve := func(path string) (string, error) {
		if filepath.IsAbs(path) {
			if !allowAbsolute {
				return "", fmt.Errorf("%w: absolute paths not allowed in this sandbox", ErrSandboxViolation)
			}
			return path, nil
		}
		joined := filepath.Join(commandDir, path)
		if allowAbsolute {
			return joined, nil
		}
		canonicalDir, err := filepath.Abs(commandDir)
		if err != nil {
			canonicalDir = commandDir
		}
		canonical, err := filepath.Abs(joined)
		if err != nil {
			canonical = joined
		}
		if resolved, err := filepath.EvalSymlinks(canonical); err == nil {
			canonical = resolved
		}
		rel, err := filepath.Rel(canonicalDir, canonical)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: path escapes command folder", ErrSandboxViolation)
		}
		return joined, nil
	}

	fsObj := vm.NewObject()

	fsObj.Set("read", func(path string) (string, error) {
		full, err := resolve(path)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrIO, err)
		}
		return string(data), nil
	})

	fsObj.Set("read_bytes", func(path string) (goja.ArrayBuffer, error) {
		full, err := resolve(path)
		if err != nil {
			return goja.ArrayBuffer{}, err
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return goja.ArrayBuffer{}, fmt.Errorf("%w: %v", ErrIO, err)
		}
		return vm.NewArrayBuffer(data), nil
	})

	fsObj.Set("write", func(path, content string) (bool, error) {
		full, err := resolve(path)
		if err != nil {
			return false, err
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return false, fmt.Errorf("%w: %v", ErrIO, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return false, fmt.Errorf("%w: %v", ErrIO, err)
		}
		return true, nil
	})

	fsObj.Set("append", func(path, content string) (bool, error) {
		full, err := resolve(path)
		if err != nil {
			return false, err
		}
		f, err := os.OpenFile(full, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrIO, err)
		}
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			return false, fmt.Errorf("%w: %v", ErrIO, err)
		}
		return true, nil
	})

	fsObj.Set("exists", func(path string) bool {
		full, err := resolve(path)
		if err != nil {
			return false
		}
		_, err = os.Stat(full)
		return err == nil
	})

	fsObj.Set("is_file", func(path string) bool {
		full, err := resolve(path)
		if err != nil {
			return false
		}
		info, err := os.Stat(full)
		return err == nil && info.Mode().IsRegular()
	})

	fsObj.Set("is_dir", func(path string) bool {
		full, err := resolve(path)
		if err != nil {
			return false
		}
		info, err := os.Stat(full)
		return err == nil && info.IsDir()
	})

	fsObj.Set("list", func(path string) ([]map[string]any, error) {
		target := commandDir
		if path != "" {
			full, err := resolve(path)
			if err != nil {
				return nil, err
			}
			target = full
		}
		entries, err := os.ReadDir(target)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
		items := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			items = append(items, map[string]any{
				"name":    e.Name(),
				"path":    filepath.Join(target, e.Name()),
				"is_dir":  e.IsDir(),
				"is_file": !e.IsDir(),
			})
		}
		return items, nil
	})

	fsObj.Set("mkdir", func(path string) (bool, error) {
		full, err := resolve(path)
		if err != nil {
			return false, err
		}
		if err := os.MkdirAll(full, 0o755); err != nil {
			return false, fmt.Errorf("%w: %v", ErrIO, err)
		}
		return true, nil
	})

	fsObj.Set("remove", func(path string) (bool, error) {
		full, err := resolve(path)
		if err != nil {
			return false, err
		}
		if err := os.RemoveAll(full); err != nil {
			return false, fmt.Errorf("%w: %v", ErrIO, err)
		}
		return true, nil
	})

	jarvis.Set("fs", fsObj)
}
