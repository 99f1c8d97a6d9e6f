package notify

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Event tags the collection an envelope carries.
type Event string

const (
	EventPlayersGraph Event = "PlayersGraph"
	EventServers      Event = "Servers"
	EventError        Event = "Error"
)

// Valid reports whether e belongs to the closed set of event tags.
func (e Event) Valid() bool {
	switch e {
	case EventPlayersGraph, EventServers, EventError:
		return true
	default:
		return false
	}
}

// fallbackFrame is sent when an envelope cannot be encoded.
const fallbackFrame = `{"code":500,"message":"Failed to serialize message","data":null,"event":"Error"}`

// Envelope is the frame pushed to every subscriber.
// A nil Data encodes as null.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Event   Event           `json:"event"`
}

// NewEnvelope builds an envelope around an already encoded payload.
func NewEnvelope(code int, message string, data json.RawMessage, event Event) Envelope {
	return Envelope{Code: code, Message: message, Data: data, Event: event}
}

// StatusCoder is implemented by errors that know their HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// ErrorEnvelope reports a failed fetch. It never carries data.
func ErrorEnvelope(err error) Envelope {
	code := http.StatusInternalServerError
	var sc StatusCoder
	if errors.As(err, &sc) {
		code = sc.StatusCode()
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Envelope{Code: code, Message: msg, Event: EventError}
}

// Encode returns the JSON form of the envelope.
func (e Envelope) Encode() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		return []byte(fallbackFrame)
	}
	return b
}
