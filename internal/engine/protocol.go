// Package engine adapts external speech recognition engines to session handles.
//
// Engines speak a small JSON protocol: hark writes one request object per
// line (stdio) or per text frame (websocket), and the engine answers with
// event objects in the same framing.
package engine

import (
	"encoding/json"
	"fmt"

	"github.com/rbright/hark/internal/session"
)

// Request operations.
const (
	OpStart     = "start"
	OpCancel    = "cancel"
	OpStop      = "stop"
	OpLanguages = "languages"
)

// Engine event names.
const (
	EventReady          = "ready"
	EventBeginning      = "beginning"
	EventEnd            = "end"
	EventError          = "error"
	EventResults        = "results"
	EventPartialResults = "partial_results"
	EventSegmentResults = "segment_results"
	EventSegmentEnd     = "segment_end"
	EventLanguages      = "languages"
)

// Request is one command sent to an engine.
type Request struct {
	Op     string       `json:"op"`
	Config *StartConfig `json:"config,omitempty"`
}

// StartConfig is the wire form of session.Config.
type StartConfig struct {
	Language         string `json:"language"`
	MaxResults       int    `json:"max_results"`
	Prompt           string `json:"prompt,omitempty"`
	PartialResults   bool   `json:"partial_results"`
	SilenceTimeoutMS int64  `json:"silence_timeout_ms,omitempty"`
}

// Message is one event received from an engine.
type Message struct {
	Event     string   `json:"event"`
	Code      int      `json:"code,omitempty"`
	Matches   []string `json:"matches,omitempty"`
	Languages []string `json:"languages,omitempty"`
	Message   string   `json:"message,omitempty"`
}

func startRequest(cfg session.Config) Request {
	return Request{
		Op: OpStart,
		Config: &StartConfig{
			Language:         cfg.Language,
			MaxResults:       cfg.MaxResults,
			Prompt:           cfg.Prompt,
			PartialResults:   cfg.PartialResults,
			SilenceTimeoutMS: cfg.SilenceTimeout.Milliseconds(),
		},
	}
}

// ParseMessage decodes one frame of engine output.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode engine message: %w", err)
	}
	if msg.Event == "" {
		return Message{}, fmt.Errorf("decode engine message: missing event")
	}
	return msg, nil
}

// ToEvent converts a protocol message into a session event. Messages that do
// not map to a session callback (such as language replies) report false.
func (m Message) ToEvent() (session.EngineEvent, bool) {
	switch m.Event {
	case EventReady:
		return session.Ready{}, true
	case EventBeginning:
		return session.Beginning{}, true
	case EventEnd:
		return session.EndOfSpeech{}, true
	case EventError:
		return session.EngineFailure{Code: session.ErrorCode(m.Code)}, true
	case EventResults:
		return session.Results{Matches: m.Matches}, true
	case EventPartialResults:
		return session.PartialResults{Matches: m.Matches}, true
	case EventSegmentResults:
		return session.SegmentResults{Matches: m.Matches}, true
	case EventSegmentEnd:
		return session.SegmentedSessionEnded{}, true
	default:
		return nil, false
	}
}
