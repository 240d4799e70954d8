package script

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// registerHTTP exposes jarvis.http.get/post/post_json/json, a standard+
// tier capability. The client's timeout is capped at the command's own
// script timeout so a hung request cannot outlive its caller.
func (h *Host) registerHTTP(vm *goja.Runtime, jarvis *goja.Object, timeout time.Duration) {
	client := &http.Client{Timeout: timeout}

	request := func(method, url, body string, headers map[string]string) *goja.Object {
		result := vm.NewObject()

		req, err := http.NewRequestWithContext(context.Background(), method, url, strings.NewReader(body))
		if err != nil {
			result.Set("ok", false)
			result.Set("status", 0)
			result.Set("error", err.Error())
			result.Set("body", "")
			return result
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			result.Set("ok", false)
			result.Set("status", 0)
			result.Set("error", err.Error())
			result.Set("body", "")
			return result
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)
		headerObj := vm.NewObject()
		for k := range resp.Header {
			headerObj.Set(k, resp.Header.Get(k))
		}

		result.Set("ok", resp.StatusCode >= 200 && resp.StatusCode < 300)
		result.Set("status", resp.StatusCode)
		result.Set("headers", headerObj)
		result.Set("body", string(data))
		return result
	}

	httpObj := vm.NewObject()

	httpObj.Set("get", func(url string, headers map[string]string) *goja.Object {
		return request(http.MethodGet, url, "", headers)
	})

	httpObj.Set("post", func(url, body string, headers map[string]string) *goja.Object {
		return request(http.MethodPost, url, body, headers)
	})

	httpObj.Set("post_json", func(url string, data map[string]any, headers map[string]string) (*goja.Object, error) {
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("%w: encode JSON body: %v", ErrRuntimeFailure, err)
		}
		merged := map[string]string{"Content-Type": "application/json"}
		for k, v := range headers {
			merged[k] = v
		}
		return request(http.MethodPost, url, string(payload), merged), nil
	})

	httpObj.Set("json", func(url string) (any, error) {
		resp := request(http.MethodGet, url, "", nil)
		if ok, _ := resp.Get("ok").Export().(bool); !ok {
			return goja.Undefined(), nil
		}
		body, _ := resp.Get("body").Export().(string)
		var parsed any
		if err := json.Unmarshal([]byte(body), &parsed); err != nil {
			return nil, fmt.Errorf("%w: parse JSON response: %v", ErrRuntimeFailure, err)
		}
		return parsed, nil
	})

	jarvis.Set("http", httpObj)
}
