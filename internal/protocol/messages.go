package protocol

import "time"

// FaceMatch is the vision service's verdict after debouncing a visitor's
// face against the gallery.
type FaceMatch struct {
	SessionID  string    `json:"session_id"`
	Name       string    `json:"name"`
	Confidence float64   `json:"confidence,omitempty"`
	Frames     int       `json:"frames"`
	Timestamp  time.Time `json:"timestamp"`
}

// PlayRequest asks the sequencer to play one song from the songbook.
type PlayRequest struct {
	SessionID string    `json:"session_id"`
	Song      string    `json:"song"`
	Timestamp time.Time `json:"timestamp"`
}

// PlaybackStatus reports the start or end of a song performance.
type PlaybackStatus struct {
	SessionID  string         `json:"session_id"`
	Song       string         `json:"song"`
	Completed  bool           `json:"completed"`
	NoteCounts map[string]int `json:"note_counts,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// SpeechRequest asks the speech service to speak one lyric phrase.
type SpeechRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Voice     string `json:"voice,omitempty"`
}

// SpeechStatus reports a spoken phrase.
type SpeechStatus struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	Timestamp time.Time `json:"timestamp"`
}

// ShowState announces a kiosk state transition.
type ShowState struct {
	SessionID string    `json:"session_id,omitempty"`
	State     string    `json:"state"`
	Song      string    `json:"song,omitempty"`
	Face      string    `json:"face,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectFaceMatch      = "vision.face.match"
	SubjectPlayRequest    = "playback.request"
	SubjectPlaybackStatus = "playback.status"
	SubjectSpeechSay      = "speech.say"
	SubjectSpeechDone     = "speech.done"
	SubjectShowState      = "show.state"
	SubjectDeviceBeat     = "device.heartbeat"
	SubjectDeviceAnnounce = "device.announce"
)
