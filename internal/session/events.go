package session

import (
	"log/slog"
	"time"
)

// EngineEvent is one callback reported by a recognition engine. The set of
// implementations is closed; Controller.Dispatch handles each of them.
type EngineEvent interface {
	engineEvent()
}

// Ready reports that the engine is ready to receive speech.
type Ready struct{}

// Beginning reports that the user started speaking.
type Beginning struct{}

// EndOfSpeech reports that the engine stopped listening.
type EndOfSpeech struct{}

// EngineFailure reports an engine error code.
type EngineFailure struct {
	Code ErrorCode
}

// Results carries the final transcript alternatives.
type Results struct {
	Matches []string
}

// PartialResults carries an intermediate transcript.
type PartialResults struct {
	Matches []string
}

// SegmentResults carries the result of one silence-delimited segment.
type SegmentResults struct {
	Matches []string
}

// SegmentedSessionEnded reports the end of a segmented session.
type SegmentedSessionEnded struct{}

func (Ready) engineEvent()                 {}
func (Beginning) engineEvent()             {}
func (EndOfSpeech) engineEvent()           {}
func (EngineFailure) engineEvent()         {}
func (Results) engineEvent()               {}
func (PartialResults) engineEvent()        {}
func (SegmentResults) engineEvent()        {}
func (SegmentedSessionEnded) engineEvent() {}

// EventType names an event emitted to the caller.
type EventType string

const (
	EventListeningState        EventType = "listeningState"
	EventPartialResults        EventType = "partialResults"
	EventSegmentResults        EventType = "segmentResults"
	EventEndOfSegmentedSession EventType = "endOfSegmentedSession"
)

// ListeningStatus is the payload of a listeningState event.
type ListeningStatus string

const (
	ListeningStarted ListeningStatus = "started"
	ListeningStopped ListeningStatus = "stopped"
)

// Event is one controller notification delivered to an EventSink.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Status    ListeningStatus `json:"status,omitempty"`
	Matches   ResultSet       `json:"matches,omitempty"`
	At        time.Time       `json:"at"`
}

// EventSink receives controller events. Emit is called with the controller
// lock held and must not block or call back into the controller.
type EventSink interface {
	Emit(Event)
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) Emit(event Event) {
	for _, sink := range m {
		if sink == nil {
			continue
		}
		sink.Emit(event)
	}
}

// LogSink records every event at debug level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(event Event) {
	if s.Logger == nil {
		return
	}
	s.Logger.Debug("session event",
		"type", event.Type,
		"session_id", event.SessionID,
		"status", event.Status,
		"matches", len(event.Matches),
	)
}
