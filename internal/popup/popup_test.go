package popup

import (
	"context"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/rbright/hark/internal/session"
)

func TestNewRejectsEmptyCommand(t *testing.T) {
	_, err := New("  ", time.Second, nil)
	require.Error(t, err)

	_, err = New(`zenity "unterminated`, time.Second, nil)
	require.ErrorContains(t, err, "parse popup command")
}

func TestRecognizeReturnsAlternatives(t *testing.T) {
	r, err := New(`sh -c 'cat >/dev/null; printf "hello there\n\n  hallo there \nhullo\n"'`, 5*time.Second, nil)
	require.NoError(t, err)

	matches, err := r.Recognize(context.Background(), session.Config{Language: "en-US", MaxResults: 2})
	require.NoError(t, err)
	require.Equal(t, session.ResultSet{"hello there", "hallo there"}, matches)
}

func TestRecognizeSendsRequestOnStdin(t *testing.T) {
	r, err := New("cat", 5*time.Second, nil)
	require.NoError(t, err)

	matches, err := r.Recognize(context.Background(), session.Config{Language: "de-DE", MaxResults: 3, Prompt: "Sprich"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.JSONEq(t, `{"language":"de-DE","max_results":3,"prompt":"Sprich"}`, matches[0])
}

func TestRecognizeEmptyOutputIsNoMatch(t *testing.T) {
	r, err := New("true", 5*time.Second, nil)
	require.NoError(t, err)

	_, err = r.Recognize(context.Background(), session.Config{MaxResults: 5})
	var engineErr *session.EngineError
	require.True(t, errors.As(err, &engineErr))
	require.Equal(t, session.KindNoMatch, engineErr.Kind)
}

func TestRecognizeFailureIncludesStderr(t *testing.T) {
	r, err := New(`sh -c 'echo dismissed by user >&2; exit 3'`, 5*time.Second, nil)
	require.NoError(t, err)

	_, err = r.Recognize(context.Background(), session.Config{MaxResults: 5})
	require.ErrorContains(t, err, "dismissed by user")
}

func TestRecognizeFailureKeepsStderrValidUTF8(t *testing.T) {
	r, err := New(`sh -c 'printf a >&2; i=0; while [ $i -lt 300 ]; do printf "\303\251" >&2; i=$((i+1)); done; exit 1'`, 5*time.Second, nil)
	require.NoError(t, err)

	_, err = r.Recognize(context.Background(), session.Config{MaxResults: 5})
	require.Error(t, err)
	require.True(t, utf8.ValidString(err.Error()), err.Error())
	require.ErrorContains(t, err, "aéé")
}

func TestTruncateCutsAtRuneBoundary(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "aé", truncate("aéé", 4))
	require.Equal(t, "aéé", truncate("aéé", 5))
	require.Equal(t, "", truncate("日本", 2))
	require.Equal(t, "日", truncate("日本", 5))
}

func TestRecognizeHonorsTimeout(t *testing.T) {
	r, err := New("sleep 5", 50*time.Millisecond, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = r.Recognize(context.Background(), session.Config{MaxResults: 5})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 3*time.Second)
}

func TestControllerUsesPopupRecognizer(t *testing.T) {
	r, err := New(`sh -c 'cat >/dev/null; echo lights on'`, 5*time.Second, nil)
	require.NoError(t, err)

	controller := session.NewController(session.Options{
		Factory: session.HandleFactoryFunc(func(context.Context, func(session.EngineEvent)) (session.Handle, error) {
			return nil, errors.New("inline engine must not be used")
		}),
		Popup: r,
	})
	defer controller.Close(context.Background())

	call, err := controller.Start(context.Background(), session.Config{Language: "en-US", Popup: true})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outcome, err := call.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, session.ResultSet{"lights on"}, outcome.Matches)
	require.False(t, controller.IsListening())
}
