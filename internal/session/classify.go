package session

import "fmt"

// ErrorCode is the numeric error reported by a recognition engine.
type ErrorCode int

// Engine error codes. Values follow the platform recognizer constants so
// engines can forward them untranslated.
const (
	CodeNetworkTimeout          ErrorCode = 1
	CodeNetwork                 ErrorCode = 2
	CodeAudio                   ErrorCode = 3
	CodeServer                  ErrorCode = 4
	CodeClient                  ErrorCode = 5
	CodeSpeechTimeout           ErrorCode = 6
	CodeNoMatch                 ErrorCode = 7
	CodeRecognizerBusy          ErrorCode = 8
	CodeInsufficientPermissions ErrorCode = 9
	CodeServerDisconnected      ErrorCode = 11
)

// Kind is the stable classification of an engine error.
type Kind string

const (
	KindAudio                   Kind = "audio"
	KindClient                  Kind = "client"
	KindInsufficientPermissions Kind = "insufficient_permissions"
	KindNetwork                 Kind = "network"
	KindNetworkTimeout          Kind = "network_timeout"
	KindNoMatch                 Kind = "no_match"
	KindRecognizerBusy          Kind = "recognizer_busy"
	KindServer                  Kind = "server"
	KindSpeechTimeout           Kind = "speech_timeout"
	KindServerDisconnected      Kind = "server_disconnected"
	KindUnknown                 Kind = "unknown"
)

// EngineError is a classified engine failure surfaced to callers.
type EngineError struct {
	Kind    Kind
	Code    ErrorCode
	Message string
}

func (e *EngineError) Error() string {
	return e.Message
}

// Classify maps an engine error code to its kind and human message.
func Classify(code ErrorCode) *EngineError {
	kind, message := classify(code)
	return &EngineError{Kind: kind, Code: code, Message: message}
}

func classify(code ErrorCode) (Kind, string) {
	switch code {
	case CodeAudio:
		return KindAudio, "Audio recording error"
	case CodeClient:
		return KindClient, "Client side error"
	case CodeInsufficientPermissions:
		return KindInsufficientPermissions, "Insufficient permissions"
	case CodeNetwork:
		return KindNetwork, "Network error"
	case CodeNetworkTimeout:
		return KindNetworkTimeout, "Network timeout"
	case CodeNoMatch:
		return KindNoMatch, "No match"
	case CodeRecognizerBusy:
		return KindRecognizerBusy, "RecognitionService busy"
	case CodeServer:
		return KindServer, "Error from server"
	case CodeSpeechTimeout:
		return KindSpeechTimeout, "No speech input"
	case CodeServerDisconnected:
		return KindServerDisconnected, "Server disconnected"
	default:
		return KindUnknown, fmt.Sprintf("Didn't understand, please try again. Error code: %d", code)
	}
}
