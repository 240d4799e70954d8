package ipc

import (
	"encoding/json"

	"github.com/agalue/jarvis-voice/internal/session"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// eventFrame is the wire shape of an outbound session.Event. Field names
// match the action/event vocabulary the controller already emits under
// (see session.Event); only the JSON tags are protocol surface.
type eventFrame struct {
	Kind          string `json:"kind"`
	Text          string `json:"text,omitempty"`
	CommandID     string `json:"command_id,omitempty"`
	Success       bool   `json:"success,omitempty"`
	Message       string `json:"message,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// encodeEvent renders e as a single JSON line, stamped with seq so a client
// can detect gaps or reordering introduced by its own read loop. seq is
// patched onto the marshaled object rather than added as a session.Event
// field: sequencing is wire-protocol concern the controller itself has no
// reason to know about.
func encodeEvent(e session.Event, seq uint64) ([]byte, error) {
	frame := eventFrame{
		Kind:          e.Kind,
		Text:          e.Text,
		CommandID:     e.CommandID,
		Success:       e.Success,
		Message:       e.Message,
		CorrelationID: e.CorrelationID,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(data, "seq", seq)
}

// decodeAction reads the fields an inbound action line may carry. gjson is
// used instead of a strict struct unmarshal so a client sending extra
// fields (a request id for its own bookkeeping, say) never breaks parsing —
// only "action", "text", and "muted" are ever read.
func decodeAction(line []byte) (action, text string, muted bool) {
	result := gjson.ParseBytes(line)
	return result.Get("action").String(), result.Get("text").String(), result.Get("muted").Bool()
}
