package protocol

import (
	"errors"
	"strings"
)

// Status is the outcome carried by a Response.
type Status int

const (
	StatusOK Status = iota
	StatusError
	StatusPong
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusPong:
		return "pong"
	default:
		return "unknown"
	}
}

// ErrMalformedResponse is returned by Decode for text that is not a reply.
var ErrMalformedResponse = errors.New("malformed response")

// Response is a reply to one request. Payload is the result string for
// StatusOK and the formatted trace for StatusError; it is ignored for
// StatusPong.
type Response struct {
	Status  Status
	Payload string
}

// Result returns an ok response carrying value.
func Result(value string) Response { return Response{Status: StatusOK, Payload: value} }

// Ack returns the ok response with no explicit value.
func Ack() Response { return Result(OK) }

// Failure returns an error response carrying trace.
func Failure(trace string) Response { return Response{Status: StatusError, Payload: trace} }

// PongResponse returns the liveness reply.
func PongResponse() Response { return Response{Status: StatusPong} }

// Encode renders the response as wire text. The payload is not interpreted.
func (r Response) Encode() string {
	switch r.Status {
	case StatusError:
		return PrefixError + r.Payload
	case StatusPong:
		return Pong
	default:
		return PrefixResult + r.Payload
	}
}

// Decode parses a reply received by a client.
func Decode(text string) (Response, error) {
	switch {
	case text == Pong:
		return PongResponse(), nil
	case strings.HasPrefix(text, PrefixError):
		return Failure(text[len(PrefixError):]), nil
	case strings.HasPrefix(text, PrefixResult):
		return Result(text[len(PrefixResult):]), nil
	default:
		return Response{}, ErrMalformedResponse
	}
}

// OK reports whether the response is a success (including PONG).
func (r Response) OK() bool { return r.Status != StatusError }
