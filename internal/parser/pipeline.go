// Package parser turns child process output into lines and inspects them.
//
// A service that writes faster than the harness reads must never block on a
// full pipe, so each output stream flows through a bounded Pipeline:
//
//	Consume  reads lines from the pipe and drops them when the buffer is full
//	Run      hands buffered lines to a LineParser at its own pace
//
// Parsers are the sinks: readiness matching, output forwarding and the
// Playwright result counter.
package parser

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
)

const (
	// DefaultBufferSize is the per-stream line buffer.
	DefaultBufferSize = 1000

	// DefaultDropThreshold is the drop rate above which a stream is degraded.
	DefaultDropThreshold = 0.01

	// maxLineSize bounds a single output line. Bundlers and stack traces can
	// emit very long lines; the excess is discarded.
	maxLineSize = 1024 * 1024
)

// LineParser is implemented by everything that consumes output lines.
type LineParser interface {
	ParseLine(line string)
}

// Stats is a snapshot of a pipeline's counters.
type Stats struct {
	Bytes     int64
	Read      int64
	Dropped   int64
	Parsed    int64
	Truncated int64
}

// DropRate returns Dropped/Read, or 0 before any line was read.
func (s Stats) DropRate() float64 {
	if s.Read == 0 {
		return 0
	}
	return float64(s.Dropped) / float64(s.Read)
}

// Pipeline buffers one output stream of one process.
type Pipeline struct {
	name   string // service or suite
	stream string // "stdout" or "stderr"

	lines     chan string
	closeOnce sync.Once

	bytes     atomic.Int64
	read      atomic.Int64
	dropped   atomic.Int64
	parsed    atomic.Int64
	truncated atomic.Int64 // lines cut to maxLineSize

	dropThreshold float64
}

// NewPipeline creates a pipeline for the named stream. Non-positive
// bufferSize or dropThreshold select the defaults.
func NewPipeline(name, stream string, bufferSize int, dropThreshold float64) *Pipeline {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	if dropThreshold <= 0 {
		dropThreshold = DefaultDropThreshold
	}
	return &Pipeline{
		name:          name,
		stream:        stream,
		lines:         make(chan string, bufferSize),
		dropThreshold: dropThreshold,
	}
}

// Consume reads lines from r until EOF or a read error, then closes the
// pipeline. It never blocks on the parser. Lines longer than maxLineSize
// are cut to that length and the rest of the line is discarded, so r is
// always drained. Run it in its own goroutine.
func (p *Pipeline) Consume(r io.Reader) {
	defer p.Close()

	br := bufio.NewReaderSize(r, 64*1024)
	var (
		line      []byte
		truncated bool
	)
	for {
		frag, more, err := br.ReadLine()
		if err != nil {
			return
		}
		p.bytes.Add(int64(len(frag)))

		if room := maxLineSize - len(line); len(frag) > room {
			frag = frag[:room]
			truncated = true
		}
		line = append(line, frag...)
		if more {
			continue
		}

		p.bytes.Add(1)
		if truncated {
			p.truncated.Add(1)
			truncated = false
		}
		p.Feed(string(line))
		line = line[:0]
	}
}

// Feed queues one line. It reports false when the line was dropped.
func (p *Pipeline) Feed(line string) bool {
	p.read.Add(1)
	select {
	case p.lines <- line:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Close ends the stream. Run returns once buffered lines are parsed.
// Safe to call more than once.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.lines)
	})
}

// Run hands every buffered line to parser until the pipeline is closed.
func (p *Pipeline) Run(parser LineParser) {
	for line := range p.lines {
		parser.ParseLine(line)
		p.parsed.Add(1)
	}
}

// Stats returns a snapshot of the pipeline's counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Bytes:     p.bytes.Load(),
		Read:      p.read.Load(),
		Dropped:   p.dropped.Load(),
		Parsed:    p.parsed.Load(),
		Truncated: p.truncated.Load(),
	}
}

// Degraded reports whether the drop rate exceeds the threshold. A degraded
// stdout may have lost the readiness line, in which case the gate falls
// back to its timeout.
func (p *Pipeline) Degraded() bool {
	return p.Stats().DropRate() > p.dropThreshold
}

// Name returns the service or suite name.
func (p *Pipeline) Name() string {
	return p.name
}

// Stream returns "stdout" or "stderr".
func (p *Pipeline) Stream() string {
	return p.stream
}

// Tee fans each line out to several parsers, in order. Nil entries are
// skipped.
type Tee []LineParser

// ParseLine forwards line to every parser.
func (t Tee) ParseLine(line string) {
	for _, p := range t {
		if p != nil {
			p.ParseLine(line)
		}
	}
}
