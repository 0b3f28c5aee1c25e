package svcfields

import (
	"bytes"
	"strings"
	"testing"

	"pkt.systems/pslog"
)

func TestSubsystem(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{nil, ""},
		{[]string{"rpc"}, "rpc"},
		{[]string{"rpc", "", ".dispatch."}, "rpc.dispatch"},
		{[]string{" ", "."}, ""},
	}
	for _, tt := range tests {
		if got := Subsystem(tt.parts...); got != tt.want {
			t.Errorf("Subsystem(%q) = %q, want %q", tt.parts, got, tt.want)
		}
	}
}

func TestWithSubsystem(t *testing.T) {
	if WithSubsystem(nil, "x") == nil {
		t.Fatal("nil logger not replaced")
	}
	var buf bytes.Buffer
	logger := WithSubsystem(pslog.NewStructured(&buf), "rpc.dispatch")
	logger.Info("hello")
	if !strings.Contains(buf.String(), "rpc.dispatch") {
		t.Fatalf("log line lacks subsystem: %s", buf.String())
	}
}
