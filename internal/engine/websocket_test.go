package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/rbright/hark/internal/session"
)

func newFakeEngineServer(t *testing.T) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var req Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if crashes(req) {
				return
			}
			for _, msg := range fakeEngineReply(req) {
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebsocketEndpointValidation(t *testing.T) {
	_, err := New(Options{Backend: BackendWebsocket})
	require.ErrorContains(t, err, "endpoint is empty")

	_, err = New(Options{Backend: BackendWebsocket, Endpoint: "http://localhost:1"})
	require.ErrorContains(t, err, "ws://")
}

func TestWebsocketEngineDrivesController(t *testing.T) {
	endpoint := newFakeEngineServer(t)
	eng, err := New(Options{Backend: BackendWebsocket, Endpoint: endpoint, DialTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, BackendWebsocket, eng.Backend())

	sink := newRecordingSink()
	ctrl := session.NewController(session.Options{Factory: eng, Sink: sink})
	defer func() { _ = ctrl.Close(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = ctrl.Start(ctx, session.Config{Language: "en-US", PartialResults: true})
	require.NoError(t, err)

	require.Equal(t, session.EventListeningState, nextEvent(t, sink).Type)
	require.Equal(t, session.ResultSet{"hel"}, nextEvent(t, sink).Matches)
	require.Equal(t, session.ResultSet{"hello"}, nextEvent(t, sink).Matches)

	// Stop then restart over the same connection.
	require.NoError(t, ctrl.Stop(ctx))
	final := nextEvent(t, sink)
	require.Equal(t, session.EventPartialResults, final.Type)
	require.Equal(t, session.ResultSet{"hello world", "hello word"}, final.Matches)
	stopped := nextEvent(t, sink)
	require.Equal(t, session.ListeningStopped, stopped.Status)

	call, err := ctrl.Start(ctx, session.Config{Language: "en-US", Prompt: "final"})
	require.NoError(t, err)
	outcome, err := call.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, session.ResultSet{"hello world", "hello word"}, outcome.Matches)
	require.True(t, ctrl.Snapshot().HandleUp)
}

func TestWebsocketDisconnectDestroysHandle(t *testing.T) {
	endpoint := newFakeEngineServer(t)
	eng, err := New(Options{Backend: BackendWebsocket, Endpoint: endpoint})
	require.NoError(t, err)

	ctrl := session.NewController(session.Options{Factory: eng})
	defer func() { _ = ctrl.Close(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	call, err := ctrl.Start(ctx, session.Config{Language: "en-US", Prompt: "crash"})
	require.NoError(t, err)

	_, err = call.Wait(ctx)
	var engineErr *session.EngineError
	require.ErrorAs(t, err, &engineErr)
	require.Equal(t, session.KindServerDisconnected, engineErr.Kind)
	require.False(t, ctrl.Snapshot().HandleUp)
}

func TestWebsocketLanguages(t *testing.T) {
	endpoint := newFakeEngineServer(t)
	eng, err := New(Options{Backend: BackendWebsocket, Endpoint: endpoint})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	languages, err := eng.Languages(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"en-US", "de-DE"}, languages)
}

func TestWebsocketDialFailure(t *testing.T) {
	eng, err := New(Options{Backend: BackendWebsocket, Endpoint: "ws://127.0.0.1:1/engine", DialTimeout: 200 * time.Millisecond})
	require.NoError(t, err)

	_, err = eng.Create(context.Background(), func(session.EngineEvent) {})
	require.ErrorContains(t, err, "dial engine")
}
