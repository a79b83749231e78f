package chat

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/fmmr/plyglot/pkg/usage"
)

// Event names on the client channel. The inbound set is dispatched by the
// router; the outbound set is everything it emits back.
const (
	EventChatMessage    = "chat message"
	EventSwitchMode     = "switch mode"
	EventGetUsageStats  = "get usage stats"
	EventSettingsChange = "settings change"

	EventChatResponse = "chat response"
	EventError        = "error"
	EventUsageStats   = "usage stats"
)

// Frame is the wire envelope for every event in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func marshalFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event data")
	}
	b, err := json.Marshal(Frame{Event: event, Data: raw})
	return b, errors.Wrap(err, "marshal frame")
}

// MessagePayload is the inbound "chat message" body.
type MessagePayload struct {
	Message         string `json:"message"`
	TargetLang      string `json:"targetLang"`
	ResponseMode    string `json:"responseMode"`
	InteractionType string `json:"interactionType"`
	Model           string `json:"model,omitempty"`
}

// ModeSwitchPayload is the inbound "switch mode" body.
type ModeSwitchPayload struct {
	InteractionType string `json:"interactionType"`
}

// SettingsPayload is the inbound "settings change" body. Telemetry only;
// it never touches core state.
type SettingsPayload struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp int64  `json:"timestamp"`
}

// ResponsePayload is the outbound "chat response" body. Usage is null when
// the provider reported none.
type ResponsePayload struct {
	Text  string       `json:"text"`
	Usage *usage.Usage `json:"usage"`
	Stats usage.Stats  `json:"stats"`
}

// ErrorPayload is the outbound "error" body. Always the generic message;
// internal detail stays in the logs.
type ErrorPayload struct {
	Message string `json:"message"`
}
