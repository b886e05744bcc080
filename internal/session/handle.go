package session

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable indicates no recognition engine is usable on this host.
	ErrUnavailable = errors.New("Speech recognition service is not available.")
	// ErrPermissionDenied indicates the caller has not been granted capture access.
	ErrPermissionDenied = errors.New("Missing permission")
	// ErrStopped settles a pending call when the session is stopped first.
	ErrStopped = errors.New("recognition stopped")
	// ErrSuperseded settles a pending call replaced by a newer start.
	ErrSuperseded = errors.New("recognition superseded by a new session")
	// ErrClosed is returned once the controller has been torn down.
	ErrClosed = errors.New("session controller closed")
	// ErrInvalidConfig wraps start configuration validation failures.
	ErrInvalidConfig = errors.New("invalid session config")
)

// Handle is one live recognition engine instance. The controller never calls
// it concurrently. Implementations deliver engine events from their own
// goroutine and must never invoke the deliver callback from inside a Handle
// method.
type Handle interface {
	Start(ctx context.Context, cfg Config) error
	Cancel(ctx context.Context) error
	Stop(ctx context.Context) error
	Destroy() error
}

// HandleFactory creates engine instances wired to deliver.
type HandleFactory interface {
	Create(ctx context.Context, deliver func(EngineEvent)) (Handle, error)
}

// HandleFactoryFunc adapts a function to the HandleFactory interface.
type HandleFactoryFunc func(context.Context, func(EngineEvent)) (Handle, error)

func (f HandleFactoryFunc) Create(ctx context.Context, deliver func(EngineEvent)) (Handle, error) {
	return f(ctx, deliver)
}

// Availability reports whether the engine can currently be used.
type Availability interface {
	Available(ctx context.Context) bool
}

// AvailabilityFunc adapts a function to the Availability interface.
type AvailabilityFunc func(context.Context) bool

func (f AvailabilityFunc) Available(ctx context.Context) bool {
	return f(ctx)
}

// AuthState is the capture authorization state.
type AuthState string

const (
	AuthGranted AuthState = "granted"
	AuthDenied  AuthState = "denied"
	AuthPrompt  AuthState = "prompt"
)

// Authorizer answers and requests capture authorization.
type Authorizer interface {
	Status(ctx context.Context) AuthState
	Request(ctx context.Context) (AuthState, error)
}

// PopupRecognizer is the one-shot alternate transport used when a start
// request asks for a popup. It blocks until a terminal result or failure.
type PopupRecognizer interface {
	Recognize(ctx context.Context, cfg Config) (ResultSet, error)
}

// LanguageLister enumerates engine-supported language tags.
type LanguageLister interface {
	Languages(ctx context.Context) ([]string, error)
}

type alwaysAvailable struct{}

func (alwaysAvailable) Available(context.Context) bool { return true }

type alwaysGranted struct{}

func (alwaysGranted) Status(context.Context) AuthState { return AuthGranted }

func (alwaysGranted) Request(context.Context) (AuthState, error) { return AuthGranted, nil }
