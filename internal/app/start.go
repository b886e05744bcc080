package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbright/hark/internal/cli"
	"github.com/rbright/hark/internal/config"
	"github.com/rbright/hark/internal/ipc"
	"github.com/rbright/hark/internal/session"
)

// finalGrace is how long a streaming client keeps reading after the session
// reports it stopped; final results may trail the end-of-speech event.
const finalGrace = time.Second

func startRequest(cfg config.Config, flags cli.StartFlags) ipc.Request {
	return ipc.Request{
		Command: ipc.CommandStart,
		Start: &ipc.StartOptions{
			Language:         flags.Language,
			MaxResults:       flags.MaxResults,
			Prompt:           flags.Prompt,
			PartialResults:   flags.PartialResults || cfg.Session.PartialResults,
			Popup:            flags.Popup,
			SilenceTimeoutMS: flags.SilenceMS,
		},
	}
}

func (r Runner) commandStart(ctx context.Context, cfg config.Config, flags cli.StartFlags) int {
	req := startRequest(cfg, flags)
	segmented := flags.SilenceMS > 0 || cfg.Session.SilenceTimeoutMS > 0

	if !req.Start.PartialResults && !segmented {
		resp, err := forward(ctx, req, 0)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(r.Stderr, "stopped")
				return 0
			}
			return r.fail(err)
		}
		for _, match := range resp.Matches {
			fmt.Fprintln(r.Stdout, match)
		}
		return 0
	}

	// Subscribe before starting so no early event is missed.
	conn, err := dialEvents(ctx, cfg.HTTP.Bind)
	if err != nil {
		return r.fail(err)
	}
	defer conn.Close()

	return r.streamSession(ctx, conn, req, segmented)
}

type startResult struct {
	resp ipc.Response
	err  error
}

func (r Runner) streamSession(ctx context.Context, conn *websocket.Conn, req ipc.Request, segmented bool) int {
	partial := req.Start.PartialResults

	done := make(chan struct{})
	defer close(done)

	events := make(chan session.Event)
	readErr := make(chan error, 1)
	go func() {
		for {
			var event session.Event
			if err := conn.ReadJSON(&event); err != nil {
				readErr <- err
				return
			}
			select {
			case events <- event:
			case <-done:
				return
			}
		}
	}()

	results := make(chan startResult, 1)
	go func() {
		resp, err := forward(ctx, req, 0)
		results <- startResult{resp: resp, err: err}
	}()

	var (
		sessionID string
		settled   bool
		grace     <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if _, err := forward(context.Background(), ipc.Request{Command: ipc.CommandStop}, forwardTimeout); err != nil {
				return r.fail(err)
			}
			fmt.Fprintln(r.Stderr, "stopped")
			return 0

		case res := <-results:
			if res.err != nil {
				if ctx.Err() != nil {
					continue
				}
				return r.fail(res.err)
			}
			settled = true
			if sessionID == "" {
				sessionID = res.resp.SessionID
			}
			if !partial {
				for _, match := range res.resp.Matches {
					fmt.Fprintln(r.Stdout, match)
				}
				return 0
			}

		case event := <-events:
			if sessionID != "" && event.SessionID != "" && event.SessionID != sessionID {
				continue
			}
			switch event.Type {
			case session.EventPartialResults, session.EventSegmentResults:
				if text := bestMatch(event.Matches); text != "" {
					fmt.Fprintln(r.Stdout, text)
				}
			case session.EventListeningState:
				if event.Status == session.ListeningStopped && !segmented && grace == nil {
					grace = time.After(finalGrace)
				}
			case session.EventEndOfSegmentedSession:
				if grace == nil {
					grace = time.After(finalGrace)
				}
			}

		case <-grace:
			if settled || partial {
				return 0
			}
			grace = nil

		case err := <-readErr:
			if settled && partial {
				return 0
			}
			if !partial {
				events = nil
				readErr = nil
				continue
			}
			return r.fail(fmt.Errorf("event stream closed: %w", err))
		}
	}
}

// dialEvents connects to the daemon's websocket event stream.
func dialEvents(ctx context.Context, bind string) (*websocket.Conn, error) {
	if bind == "" {
		return nil, errors.New("streaming results needs the daemon http listener (http.bind)")
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return nil, fmt.Errorf("parse http.bind %q: %w", bind, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}

	endpoint := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, port), Path: "/events"}
	dialCtx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint.String(), nil)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return nil, errNotRunning
		}
		return nil, fmt.Errorf("connect event stream: %w", err)
	}
	return conn, nil
}
