package protocol

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Request
	}{
		{"exit", "EXIT", Request{Action: ActionExit}},
		{"exit with trailing text", "EXIT now\n", Request{Action: ActionExit}},
		{"import", "IMPORT:math", Request{Action: ActionImport, Payload: "math"}},
		{"import trims whitespace", "IMPORT:  json \n", Request{Action: ActionImport, Payload: "json"}},
		{"import empty", "IMPORT:", Request{Action: ActionImport, Payload: ""}},
		{"ping", "PING", Request{Action: ActionPing}},
		{"ping newline", "PING\n", Request{Action: ActionPing}},
		{"exec", "x = 5", Request{Action: ActionExec, Payload: "x = 5"}},
		{"exec keeps text verbatim", "  result = 1\n", Request{Action: ActionExec, Payload: "  result = 1\n"}},
		{"lowercase is code", "exit", Request{Action: ActionExec, Payload: "exit"}},
		{"import without colon is code", "IMPORT math", Request{Action: ActionExec, Payload: "IMPORT math"}},
		{"empty is code", "", Request{Action: ActionExec, Payload: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestParsePrecedence(t *testing.T) {
	// EXIT is tested before IMPORT: and PING.
	if got := Parse("EXITIMPORT:math").Action; got != ActionExit {
		t.Errorf("action = %v, want EXIT", got)
	}
	if got := Parse("IMPORT:PING").Action; got != ActionImport {
		t.Errorf("action = %v, want IMPORT", got)
	}
}

func TestRequestString(t *testing.T) {
	tests := []struct {
		req  Request
		want string
	}{
		{Exit(), "EXIT"},
		{Ping(), "PING"},
		{Import("math"), "IMPORT:math"},
		{Exec("result = 1"), "result = 1"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.req.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if diff := cmp.Diff(tt.req, Parse(tt.req.String())); diff != "" {
				t.Errorf("reparse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestActionString(t *testing.T) {
	if ActionImport.String() != "IMPORT" {
		t.Errorf("got %q", ActionImport.String())
	}
	if Action(42).String() != "Action(42)" {
		t.Errorf("got %q", Action(42).String())
	}
}
