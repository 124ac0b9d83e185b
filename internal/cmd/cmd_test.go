package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/wav"
)

func runArgs(t *testing.T, in string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp(BuildArgs{Version: "test"}, strings.NewReader(in), &out)
	err := app.Run(append([]string{"tempolock"}, args...))
	return out.String(), err
}

func TestEstimate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "steady", args: []string{"estimate", "0", "500", "1000", "1500"}, want: "120.00 bpm (4 taps)"},
		{name: "single", args: []string{"estimate", "42"}, want: "undefined (1 tap in window)"},
		{name: "gap resets", args: []string{"estimate", "0", "400", "3000"}, want: "undefined (1 tap in window)"},
		{name: "window", args: []string{"estimate", "--max-taps", "2", "0", "100", "600"}, want: "120.00 bpm (2 taps)"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			out, err := runArgs(t, "", tt.args...)
			if err != nil {
				t.Fatalf("run %v: %v", tt.args, err)
			}
			if !strings.Contains(out, tt.want) {
				t.Fatalf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestEstimateRejectsBadInput(t *testing.T) {
	t.Parallel()
	if _, err := runArgs(t, "", "estimate"); err == nil {
		t.Fatal("estimate without args succeeded")
	}
	if _, err := runArgs(t, "", "estimate", "0", "soon"); err == nil {
		t.Fatal("estimate with a bad timestamp succeeded")
	}
	if _, err := runArgs(t, "", "estimate", "--max-taps", "1", "0", "1"); err == nil {
		t.Fatal("estimate with max-taps 1 succeeded")
	}
}

func TestRenderWritesClickTrack(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clicks.wav")
	out, err := runArgs(t, "", "render", "--bpm", "120", "--duration", "2s", "--sample-rate", "8000", "--out", path)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	// ticks at 0, 0.5, 1.0, 1.5 and the one right at 2.0
	if !strings.Contains(out, "5 clicks") {
		t.Fatalf("output = %q", out)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got, want := len(buf.Data), 2*8000+800; got != want {
		t.Fatalf("frames = %d, want %d", got, want)
	}
	if buf.Data[0] != 0 || buf.Data[2] == 0 {
		t.Fatalf("click onset not at the first tick: %v", buf.Data[:4])
	}
}

func TestRenderRejectsBadFlags(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cases := [][]string{
		{"render", "--duration", "0s", "--out", filepath.Join(dir, "a.wav")},
		{"render", "--bpm", "0", "--out", filepath.Join(dir, "b.wav")},
		{"render", "--volume", "2", "--out", filepath.Join(dir, "c.wav")},
	}
	for _, args := range cases {
		if _, err := runArgs(t, "", args...); err == nil {
			t.Fatalf("render %v succeeded", args)
		}
	}
}

func TestRunQuitsOnInput(t *testing.T) {
	t.Setenv("TEMPOLOCK_CONFIG", "")
	out, err := runArgs(t, "s\nq\n", "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "tempo 120.0 bpm") {
		t.Fatalf("status missing from output: %q", out)
	}
}
