package realtime

import (
	"encoding/json"
)

// Inbound event types the session cares about. Anything else is ignored.
const (
	EventSessionCreated = "session.created"
	EventAudioDelta     = "response.audio.delta"
	EventContentDelta   = "response.content.delta"
	EventError          = "error"
)

// Event is one parsed message from the model connection.
type Event struct {
	Type  string          `json:"type"`
	Delta json.RawMessage `json:"delta,omitempty"`
	Error *ErrorDetail    `json:"error,omitempty"`
}

type ErrorDetail struct {
	Message string `json:"message"`
}

// AudioPayload returns the base64 audio carried by an audio delta.
func (e *Event) AudioPayload() (string, bool) {
	if e.Type != EventAudioDelta || len(e.Delta) == 0 {
		return "", false
	}
	var payload string
	if err := json.Unmarshal(e.Delta, &payload); err != nil || payload == "" {
		return "", false
	}
	return payload, true
}

// ContentText returns the incremental assistant text carried by a content
// delta. The delta arrives either as an object with a content field or as a
// bare string.
func (e *Event) ContentText() (string, bool) {
	if e.Type != EventContentDelta || len(e.Delta) == 0 {
		return "", false
	}

	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(e.Delta, &obj); err == nil && obj.Content != "" {
		return obj.Content, true
	}

	var s string
	if err := json.Unmarshal(e.Delta, &s); err == nil && s != "" {
		return s, true
	}
	return "", false
}

// Outbound message shapes.

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	TurnDetection     turnDetection `json:"turn_detection"`
	InputAudioFormat  string        `json:"input_audio_format"`
	OutputAudioFormat string        `json:"output_audio_format"`
	Voice             string        `json:"voice"`
	Instructions      string        `json:"instructions"`
	Modalities        []string      `json:"modalities"`
	Temperature       float64       `json:"temperature"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	CreateResponse    bool    `json:"create_response"`
	InterruptResponse bool    `json:"interrupt_response"`
}

type conversationItemCreate struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []itemContent `json:"content"`
}

type itemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseCreate struct {
	Type string `json:"type"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}
