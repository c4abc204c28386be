package telephony

// Media-stream frame shapes, JSON-framed over the telephony websocket.

// Stream event tags.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
)

// MarkTranscript is the mark name carrying recognized user speech.
const MarkTranscript = "transcript"

// StreamMessage is one inbound or outbound frame on the media stream.
type StreamMessage struct {
	Event     string      `json:"event"`
	StreamSID string      `json:"streamSid,omitempty"`
	Start     *StartFrame `json:"start,omitempty"`
	Media     *MediaFrame `json:"media,omitempty"`
	Mark      *MarkFrame  `json:"mark,omitempty"`
}

// StartFrame names the call and the audio stream.
type StartFrame struct {
	StreamSID    string            `json:"streamSid"`
	AccountSID   string            `json:"accountSid"`
	CallSID      string            `json:"callSid"`
	Tracks       []string          `json:"tracks,omitempty"`
	CustomParams map[string]string `json:"customParameters,omitempty"`
}

// MediaFrame carries one base64-encoded audio chunk.
type MediaFrame struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// MarkFrame is a sideband signal; Name "transcript" carries user speech in
// Value.
type MarkFrame struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// MediaOut builds an outbound audio frame addressed to a stream.
func MediaOut(streamSID, payload string) StreamMessage {
	return StreamMessage{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media:     &MediaFrame{Payload: payload},
	}
}
