// Package ipc carries daemon commands over a unix socket, one JSON object
// per line in each direction.
package ipc

// Commands understood by the daemon.
const (
	CommandStatus             = "status"
	CommandAvailable          = "available"
	CommandStart              = "start"
	CommandStop               = "stop"
	CommandListening          = "listening"
	CommandLanguages          = "languages"
	CommandPermissions        = "permissions"
	CommandRequestPermissions = "request-permissions"
	CommandVersion            = "version"
)

type Request struct {
	Command string        `json:"command"`
	Start   *StartOptions `json:"start,omitempty"`
}

// StartOptions mirrors session.Config. Zero values fall back to daemon
// defaults.
type StartOptions struct {
	Language         string `json:"language,omitempty"`
	MaxResults       int    `json:"max_results,omitempty"`
	Prompt           string `json:"prompt,omitempty"`
	PartialResults   bool   `json:"partial_results,omitempty"`
	Popup            bool   `json:"popup,omitempty"`
	SilenceTimeoutMS int    `json:"silence_timeout_ms,omitempty"`
}

type Response struct {
	OK         bool     `json:"ok"`
	State      string   `json:"state,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	Listening  bool     `json:"listening"`
	Available  bool     `json:"available,omitempty"`
	Permission string   `json:"permission,omitempty"`
	Matches    []string `json:"matches,omitempty"`
	Languages  []string `json:"languages,omitempty"`
	Version    string   `json:"version,omitempty"`
	Message    string   `json:"message,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Failure builds an error response.
func Failure(err error) Response {
	return Response{OK: false, Error: err.Error()}
}
