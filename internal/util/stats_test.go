package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pterm/pterm"
)

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
		{98.9 * 1024 * 1024 * 1024, "98.9 GiB"},
		{1 << 62, "4096.0 PiB"},
	}

	for _, tc := range testCases {
		t.Run(tc.want, func(t *testing.T) {
			if got := formatBytes(tc.in); got != tc.want {
				t.Errorf("formatBytes(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFormatStats(t *testing.T) {
	got := formatStats(1536, 0, 12.5, 2, 1, 3)
	want := "C->S:  1.5 KiB/s | S->C:  0.0   B/s |   12.5 pkt/s | Sessions: 3 active, 2↑ 1↓"
	if got != want {
		t.Errorf("formatStats = %q, want %q", got, want)
	}
}

func TestCounters(t *testing.T) {
	s := &stats{}
	s.AddSession()
	s.AddSession()
	s.RemoveSession()
	s.AddUpstream(10)
	s.AddDownstream(32)
	s.AddPacket()

	if s.Active() != 1 {
		t.Errorf("Active = %d, want 1", s.Active())
	}
	if s.Upstream.Load() != 10 || s.Downstream.Load() != 32 {
		t.Errorf("bytes = %d/%d, want 10/32", s.Upstream.Load(), s.Downstream.Load())
	}
	if s.Packets.Load() != 1 {
		t.Errorf("Packets = %d, want 1", s.Packets.Load())
	}
}

func TestSetOutput(t *testing.T) {
	prev := pterm.DefaultLogger.Writer
	defer SetOutput(prev)

	var buf bytes.Buffer
	SetOutput(&buf)

	LogWarning("listener on %s", "127.0.0.1:25564")
	if !strings.Contains(buf.String(), "listener on 127.0.0.1:25564") {
		t.Errorf("log output %q does not contain the message", buf.String())
	}
}
