package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestAMFDecodeCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := amfCmd()
	cmd.SetOut(&out)
	// "connect", 1, {app: "live"}
	cmd.SetArgs([]string{"decode", "02 0007 636f6e6e656374 00 3ff0000000000000 03 0003 617070 02 0004 6c697665 000009"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{`string "connect"`, "number 1", "object (1 keys)", "app:", `string "live"`} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output %q does not contain %q", out.String(), want)
		}
	}
}

func TestAMFDecodeErrors(t *testing.T) {
	for _, arg := range []string{"zz", "00 40"} {
		cmd := amfCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"decode", arg})
		if err := cmd.Execute(); err == nil {
			t.Errorf("decode %q: expected an error", arg)
		}
	}
}
