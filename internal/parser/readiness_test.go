package parser

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestReadinessParser_Matches(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		line     string
		want     bool
	}{
		{"default listening", nil, "Server listening on port 8000", true},
		{"default started", nil, "Client server started at http://localhost:3000", true},
		{"case insensitive", nil, "LISTENING ON 0.0.0.0:8000", true},
		{"mixed case pattern", []string{"Ready To Serve"}, "server ready to serve", true},
		{"no match", nil, "Loading map data...", false},
		{"empty line", nil, "", false},
		{"custom only", []string{"accepting"}, "listening on 8000", false},
		{"blank patterns fall back to nothing", []string{"  "}, "listening", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReadinessParser(tt.patterns)
			if got := r.Matches(tt.line); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestReadinessParser_FirstMatchWins(t *testing.T) {
	r := NewReadinessParser(nil)

	select {
	case <-r.Matched():
		t.Fatal("Matched() closed before any line")
	default:
	}

	r.ParseLine("booting")
	r.ParseLine("Game server listening on 8000")
	r.ParseLine("worker started")

	select {
	case <-r.Matched():
	case <-time.After(time.Second):
		t.Fatal("Matched() not closed after readiness line")
	}

	if got := r.MatchLine(); got != "Game server listening on 8000" {
		t.Errorf("MatchLine() = %q, want first matching line", got)
	}
	if got := r.LinesSeen(); got != 3 {
		t.Errorf("LinesSeen() = %d, want 3", got)
	}
}

func TestReadinessParser_ConcurrentMatches(t *testing.T) {
	r := NewReadinessParser(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.ParseLine("listening")
		}()
	}
	wg.Wait()

	<-r.Matched()
	if r.LinesSeen() != 50 {
		t.Errorf("LinesSeen() = %d, want 50", r.LinesSeen())
	}
}

func TestReadinessParser_ThroughPipeline(t *testing.T) {
	r := NewReadinessParser([]string{"started"})
	pipeline := NewPipeline("Client Server", "stdout", 100, 0.01)

	input := strings.Join([]string{"compiling", "bundle ready", "Client Server started"}, "\n") + "\n"
	drive(pipeline, r, input)

	select {
	case <-r.Matched():
	default:
		t.Fatal("readiness not detected through pipeline")
	}
}

func TestReadinessParser_Patterns(t *testing.T) {
	r := NewReadinessParser([]string{" Listening ", "STARTED", ""})
	got := r.Patterns()
	if len(got) != 2 || got[0] != "listening" || got[1] != "started" {
		t.Errorf("Patterns() = %v, want [listening started]", got)
	}
}
