package script

import (
	"context"
	"encoding/json"

	"github.com/dop251/goja"
)

// registerState exposes jarvis.state.get/set/delete/clear/keys/all, a
// standard+ tier capability backed by h.state and scoped to commandID.
// Values round-trip through encoding/json so any JSON-representable goja
// value (string, number, boolean, array, object) survives the store.
func (h *Host) registerState(vm *goja.Runtime, jarvis *goja.Object, ctx context.Context, commandID string) {
	state := vm.NewObject()

	errNoStore := func() error { return ErrIO }

	state.Set("get", func(key string) (any, error) {
		if h.state == nil {
			return goja.Undefined(), errNoStore()
		}
		raw, ok, err := h.state.Get(ctx, commandID, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return goja.Undefined(), nil
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	})

	state.Set("set", func(key string, value any) (bool, error) {
		if h.state == nil {
			return false, errNoStore()
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return false, err
		}
		if err := h.state.Set(ctx, commandID, key, raw); err != nil {
			return false, err
		}
		return true, nil
	})

	state.Set("delete", func(key string) (bool, error) {
		if h.state == nil {
			return false, errNoStore()
		}
		return h.state.Delete(ctx, commandID, key)
	})

	state.Set("clear", func() (bool, error) {
		if h.state == nil {
			return false, errNoStore()
		}
		if err := h.state.Clear(ctx, commandID); err != nil {
			return false, err
		}
		return true, nil
	})

	state.Set("keys", func() ([]string, error) {
		if h.state == nil {
			return nil, errNoStore()
		}
		return h.state.Keys(ctx, commandID)
	})

	state.Set("all", func() (map[string]any, error) {
		if h.state == nil {
			return nil, errNoStore()
		}
		raw, err := h.state.All(ctx, commandID)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(raw))
		for k, v := range raw {
			var parsed any
			if err := json.Unmarshal(v, &parsed); err != nil {
				return nil, err
			}
			out[k] = parsed
		}
		return out, nil
	})

	jarvis.Set("state", state)
}
