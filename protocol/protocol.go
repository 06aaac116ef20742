// Package protocol implements the bridge wire format.
//
// A request is a single text line sent by the client on a fresh connection.
// It is classified by fixed prefixes, first match wins:
//
//	EXIT              stop the bridge after acknowledging
//	IMPORT:<module>   import <module> into the shared namespace
//	PING              liveness probe
//	<anything else>   code evaluated against the shared namespace
//
// The reply is one of:
//
//	RESULT:<value>
//	PONG
//	ERROR:\n<trace>
//
// There is no length prefix: each side performs a single read and a single
// write per connection.
package protocol

import (
	"fmt"
	"strings"
)

// Wire prefixes.
const (
	PrefixExit   = "EXIT"
	PrefixImport = "IMPORT:"
	PrefixPing   = "PING"

	PrefixResult = "RESULT:"
	PrefixError  = "ERROR:\n"
	Pong         = "PONG"

	// OK is the payload used when an action succeeds without a value.
	OK = "ok"
)

// Action classifies a request.
type Action int

const (
	ActionExec Action = iota
	ActionImport
	ActionPing
	ActionExit
)

func (a Action) String() string {
	switch a {
	case ActionExec:
		return "EXEC"
	case ActionImport:
		return "IMPORT"
	case ActionPing:
		return "PING"
	case ActionExit:
		return "EXIT"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Request is a parsed request line. Payload is the code for ActionExec, the
// module identifier for ActionImport and empty otherwise.
type Request struct {
	Action  Action
	Payload string
}

// Parse classifies text. It never fails: anything that is not a control
// command is code.
func Parse(text string) Request {
	switch {
	case strings.HasPrefix(text, PrefixExit):
		return Request{Action: ActionExit}
	case strings.HasPrefix(text, PrefixImport):
		return Request{Action: ActionImport, Payload: strings.TrimSpace(text[len(PrefixImport):])}
	case strings.HasPrefix(text, PrefixPing):
		return Request{Action: ActionPing}
	default:
		return Request{Action: ActionExec, Payload: text}
	}
}

// String renders the request as a wire line.
func (r Request) String() string {
	switch r.Action {
	case ActionExit:
		return PrefixExit
	case ActionImport:
		return PrefixImport + r.Payload
	case ActionPing:
		return PrefixPing
	default:
		return r.Payload
	}
}

// Exec builds an EXEC request.
func Exec(code string) Request { return Request{Action: ActionExec, Payload: code} }

// Import builds an IMPORT request.
func Import(module string) Request { return Request{Action: ActionImport, Payload: module} }

// Ping builds a PING request.
func Ping() Request { return Request{Action: ActionPing} }

// Exit builds an EXIT request.
func Exit() Request { return Request{Action: ActionExit} }
