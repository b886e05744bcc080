package engine

import (
	"github.com/rbright/hark/internal/session"
)

// fakeEngineReply scripts the responses a test engine gives to one request.
func fakeEngineReply(req Request) []Message {
	switch req.Op {
	case OpStart:
		if req.Config != nil && req.Config.Prompt == "final" {
			return []Message{
				{Event: EventReady},
				{Event: EventBeginning},
				{Event: EventResults, Matches: []string{"hello world", "hello word"}},
				{Event: EventEnd},
			}
		}
		return []Message{
			{Event: EventReady},
			{Event: EventPartialResults, Matches: []string{"hel"}},
			{Event: EventPartialResults, Matches: []string{"hel"}},
			{Event: EventPartialResults, Matches: []string{"hello"}},
		}
	case OpStop:
		return []Message{
			{Event: EventResults, Matches: []string{"hello world", "hello word"}},
			{Event: EventEnd},
		}
	case OpLanguages:
		return []Message{{Event: EventLanguages, Languages: []string{"en-US", "de-DE"}}}
	default:
		return nil
	}
}

// crashes reports whether the scripted engine should drop the connection.
func crashes(req Request) bool {
	return req.Op == OpStart && req.Config != nil && req.Config.Prompt == "crash"
}

type recordingSink struct {
	events chan session.Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan session.Event, 64)}
}

func (s *recordingSink) Emit(event session.Event) {
	s.events <- event
}
