package parser

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowParser simulates a parser that can't keep up with input.
type slowParser struct {
	delay time.Duration
	mu    sync.Mutex
	lines []string
}

func (p *slowParser) ParseLine(line string) {
	time.Sleep(p.delay)
	p.mu.Lock()
	p.lines = append(p.lines, line)
	p.mu.Unlock()
}

// countingParser counts lines without delay.
type countingParser struct {
	mu    sync.Mutex
	count int64
}

func (p *countingParser) ParseLine(string) {
	p.mu.Lock()
	p.count++
	p.mu.Unlock()
}

func (p *countingParser) Count() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// drive runs Consume and Run to completion.
func drive(pipeline *Pipeline, parser LineParser, input string) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pipeline.Consume(strings.NewReader(input))
	}()
	go func() {
		defer wg.Done()
		pipeline.Run(parser)
	}()
	wg.Wait()
}

func TestPipeline_ConsumeCountsBytesAndLines(t *testing.T) {
	pipeline := NewPipeline("Game Server", "stdout", 100, 0.01)
	parser := &countingParser{}

	drive(pipeline, parser, "a\nbb\nccc\n")

	assert.Equal(t, Stats{Bytes: 9, Read: 3, Parsed: 3}, pipeline.Stats())
	assert.Equal(t, int64(3), parser.Count())
}

func TestPipeline_FinalLineWithoutNewline(t *testing.T) {
	pipeline := NewPipeline("Game Server", "stdout", 100, 0.01)
	parser := &slowParser{}

	drive(pipeline, parser, "starting\nlistening on 8000")

	assert.Equal(t, []string{"starting", "listening on 8000"}, parser.lines)
}

func TestPipeline_LongLineIsTruncatedAndDrained(t *testing.T) {
	pipeline := NewPipeline("Game Server", "stdout", 100, 0.01)
	parser := &slowParser{}

	long := strings.Repeat("x", 2*maxLineSize+10)
	input := "before\n" + long + "\n" + strings.Repeat("after\n", 20) + "listening on 8000\n"
	drive(pipeline, parser, input)

	require.Len(t, parser.lines, 23)
	assert.Equal(t, "before", parser.lines[0])
	assert.Len(t, parser.lines[1], maxLineSize)
	assert.Equal(t, "after", parser.lines[2])
	assert.Equal(t, "listening on 8000", parser.lines[22])

	s := pipeline.Stats()
	assert.Equal(t, int64(1), s.Truncated)
	assert.Equal(t, int64(len(input)), s.Bytes)
}

func TestPipeline_DropsUnderPressure(t *testing.T) {
	pipeline := NewPipeline("Game Server", "stdout", 5, 0.01)

	drive(pipeline, &slowParser{delay: 10 * time.Millisecond}, strings.Repeat("line\n", 100))

	s := pipeline.Stats()
	assert.Equal(t, int64(100), s.Read)
	assert.NotZero(t, s.Dropped, "slow parser with a small buffer must drop")
	assert.Equal(t, s.Read, s.Parsed+s.Dropped)
}

func TestPipeline_NoDropsWhenFast(t *testing.T) {
	pipeline := NewPipeline("Game Server", "stdout", 1000, 0.01)
	parser := &countingParser{}

	drive(pipeline, parser, strings.Repeat("line\n", 100))

	s := pipeline.Stats()
	assert.Equal(t, int64(100), s.Read)
	assert.Zero(t, s.Dropped)
	assert.Equal(t, int64(100), s.Parsed)
	assert.Equal(t, int64(100), parser.Count())
}

func TestPipeline_Degraded(t *testing.T) {
	tests := []struct {
		name          string
		bufferSize    int
		dropThreshold float64
		parserDelay   time.Duration
		wantDegraded  bool
	}{
		{"fast parser", 1000, 0.01, 0, false},
		{"slow parser", 5, 0.01, 5 * time.Millisecond, true},
		{"high threshold tolerates drops", 5, 0.99, 5 * time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline := NewPipeline("svc", "stdout", tt.bufferSize, tt.dropThreshold)
			drive(pipeline, &slowParser{delay: tt.parserDelay}, strings.Repeat("line\n", 100))

			assert.Equal(t, tt.wantDegraded, pipeline.Degraded(), "drop rate %.2f", pipeline.Stats().DropRate())
		})
	}
}

func TestStats_DropRate(t *testing.T) {
	assert.Zero(t, Stats{}.DropRate())
	assert.InDelta(t, 0.25, Stats{Read: 8, Dropped: 2}.DropRate(), 1e-9)
}

func TestPipeline_Identity(t *testing.T) {
	pipeline := NewPipeline("Client Server", "stderr", 100, 0.01)
	assert.Equal(t, "Client Server", pipeline.Name())
	assert.Equal(t, "stderr", pipeline.Stream())
}

func TestPipeline_Defaults(t *testing.T) {
	pipeline := NewPipeline("svc", "stdout", 0, 0)
	assert.Equal(t, DefaultBufferSize, cap(pipeline.lines))
	assert.InDelta(t, DefaultDropThreshold, pipeline.dropThreshold, 1e-9)
}

func TestPipeline_CloseIdempotent(t *testing.T) {
	pipeline := NewPipeline("svc", "stdout", 10, 0.01)
	assert.True(t, pipeline.Feed("buffered"))
	pipeline.Close()
	pipeline.Close()

	parser := &countingParser{}
	pipeline.Run(parser)
	assert.Equal(t, int64(1), parser.Count(), "lines buffered before Close are still parsed")
}

func TestTee(t *testing.T) {
	a, b := &countingParser{}, &countingParser{}
	tee := Tee{a, nil, b}

	tee.ParseLine("one")
	tee.ParseLine("two")

	assert.Equal(t, int64(2), a.Count())
	assert.Equal(t, int64(2), b.Count())
}

func BenchmarkPipeline_FastParser(b *testing.B) {
	input := strings.Repeat("benchmark line with some content\n", 1000)
	for i := 0; i < b.N; i++ {
		drive(NewPipeline("bench", "stdout", 1000, 0.01), &countingParser{}, input)
	}
}
