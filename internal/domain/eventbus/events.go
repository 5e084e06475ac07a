package eventbus

// Event topics.
const (
	// Conversation events. Every mutation of the message list publishes
	// EventChatChanged so the rendering layer can scroll to the newest entry.
	EventChatChanged   = "chat:changed"
	EventChatAsked     = "chat:asked"
	EventChatAnswered  = "chat:answered"
	EventChatError     = "chat:error"

	// Playback events.
	EventPlaybackStarted = "playback:started"
	EventPlaybackStopped = "playback:stopped"
	EventPlaybackError   = "playback:error"

	// Capture events.
	EventCaptureStarted = "capture:started"
	EventCaptureStopped = "capture:stopped"
	EventCaptureLevel   = "capture:level"
	EventCaptureError   = "capture:error"

	// Transcription events.
	EventSTTResult = "stt:result"
	EventSTTError  = "stt:error"

	// Session events.
	EventSessionStarted   = "session:started"
	EventSessionRecovered = "session:recovered"

	// System events.
	EventSystemError = "system:error"
	EventSystemInfo  = "system:info"
)

// ChatEventData describes a conversation mutation.
type ChatEventData struct {
	DocID   string `json:"doc_id"`
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	Text    string `json:"text"`
	Pending bool   `json:"pending"`
}

// PlaybackEventData describes a playback state change.
type PlaybackEventData struct {
	MessageID int     `json:"message_id"`
	Duration  float64 `json:"duration"`
	Error     string  `json:"error,omitempty"`
}

// CaptureLevelData is one waveform level frame for the recording UI.
type CaptureLevelData struct {
	RMS     float64 `json:"rms"`
	Peak    float64 `json:"peak"`
	Elapsed float64 `json:"elapsed"`
}
