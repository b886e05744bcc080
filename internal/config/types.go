// Package config resolves, parses, validates, and defaults hark configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by hark.
type Config struct {
	Engine       EngineConfig
	Session      SessionConfig
	Availability AvailabilityConfig
	Permission   PermissionConfig
	Popup        PopupConfig
	Cues         CueConfig
	History      HistoryConfig
	Bus          BusConfig
	HTTP         ListenConfig
	GRPC         ListenConfig
	Log          LogConfig
}

// EngineConfig selects the recognition engine backend.
type EngineConfig struct {
	Backend       string
	Command       string
	Endpoint      string
	HealthGRPC    string
	DialTimeoutMS int
}

// DialTimeout returns the engine dial timeout.
func (e EngineConfig) DialTimeout() time.Duration {
	return time.Duration(e.DialTimeoutMS) * time.Millisecond
}

// SessionConfig holds defaults applied to start requests that omit them.
type SessionConfig struct {
	Language         string
	MaxResults       int
	PartialResults   bool
	SilenceTimeoutMS int
}

// AvailabilityConfig controls the input-source precondition.
type AvailabilityConfig struct {
	RequireInput bool
	Input        string
}

// PermissionConfig locates the persisted capture grant.
type PermissionConfig struct {
	Path string
}

// PopupConfig names the external recognizer run for popup start requests.
// An empty Command disables popup recognition.
type PopupConfig struct {
	Command   string
	TimeoutMS int
}

// Timeout bounds one popup recognition.
func (p PopupConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// CueConfig controls audible listening cues. Empty files use built-in tones.
type CueConfig struct {
	Enable       bool
	StartFile    string
	StopFile     string
	CompleteFile string
}

// HistoryConfig controls the sqlite session history.
type HistoryConfig struct {
	Enable        bool
	Path          string
	RetentionDays int
}

// BusConfig controls NATS event publishing.
type BusConfig struct {
	Enable           bool
	Servers          []string
	SubjectPrefix    string
	ConnectTimeoutMS int
}

// ConnectTimeout returns the NATS connect timeout.
func (b BusConfig) ConnectTimeout() time.Duration {
	return time.Duration(b.ConnectTimeoutMS) * time.Millisecond
}

// ListenConfig is one daemon listener. An empty Bind disables it.
type ListenConfig struct {
	Bind string
}

// LogConfig controls the runtime log level.
type LogConfig struct {
	Level string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
