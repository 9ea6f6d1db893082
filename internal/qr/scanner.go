package qr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

const (
	// DefaultCooldown is the pause after each detected code
	DefaultCooldown = 2 * time.Second
	// MaxLineSize bounds one line read by LineSource
	MaxLineSize = 1 << 20
)

// ErrSourceClosed marks a source that cannot yield further frames
var ErrSourceClosed = errors.New("frame source closed")

// Frame is one unit of input from a source, such as a captured image
type Frame []byte

// Source yields frames until it returns io.EOF. Errors wrapping ErrSourceClosed
// end scanning; any other error is treated as a bad frame.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

// Detector finds a QR code in a frame
type Detector interface {
	Detect(frame Frame) (string, bool)
}

// DetectorFunc adapts a function to Detector
type DetectorFunc func(frame Frame) (string, bool)

// Detect implements Detector
func (f DetectorFunc) Detect(frame Frame) (string, bool) {
	return f(frame)
}

// TextDetector treats each frame as already-decoded QR text. Blank frames are misses.
var TextDetector = DetectorFunc(func(frame Frame) (string, bool) {
	text := string(frame)
	for _, r := range text {
		if r != ' ' && r != '\t' && r != '\r' {
			return text, true
		}
	}
	return "", false
})

// Scanner repeatedly pulls frames, classifies detected codes and pauses after each hit
type Scanner struct {
	Source   Source
	Detector Detector
	Cooldown time.Duration

	logger *logrus.Entry
}

// NewScanner creates a scanner with the default cooldown
func NewScanner(source Source, detector Detector) *Scanner {
	return &Scanner{Source: source, Detector: detector, Cooldown: DefaultCooldown}
}

// Run scans until ctx is cancelled or the source is exhausted or closed. Frame
// errors are logged and scanning continues; the handler is called for every
// detected code.
func (s *Scanner) Run(ctx context.Context, handler func(Payload)) error {
	if s.logger == nil {
		s.logger = utils.ComponentLogger("qr")
	}
	detector := s.Detector
	if detector == nil {
		detector = TextDetector
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := s.Source.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrSourceClosed) {
				return err
			}
			s.logger.WithField("error", err).Warn("Error reading frame")
			continue
		}

		raw, ok := detector.Detect(frame)
		if !ok {
			continue
		}

		payload := Classify(raw)
		s.logger.WithField("kind", payload.Kind).Debug("QR code detected")
		handler(payload)

		if s.Cooldown > 0 {
			timer := time.NewTimer(s.Cooldown)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// LineSource yields one frame per input line. Reads happen on a background
// goroutine so a blocked reader does not delay cancellation.
type LineSource struct {
	reader io.Reader
	once   sync.Once
	lines  chan Frame
	err    error // set before lines is closed
}

// NewLineSource reads frames from r
func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{reader: r, lines: make(chan Frame)}
}

func (s *LineSource) start() {
	go func() {
		scanner := bufio.NewScanner(s.reader)
		scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), MaxLineSize)
		for scanner.Scan() {
			s.lines <- Frame(scanner.Text())
		}
		s.err = io.EOF
		if err := scanner.Err(); err != nil {
			s.err = fmt.Errorf("%w: %w", ErrSourceClosed, err)
		}
		close(s.lines)
	}()
}

// Next implements Source
func (s *LineSource) Next(ctx context.Context) (Frame, error) {
	s.once.Do(s.start)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-s.lines:
		if !ok {
			return nil, s.err
		}
		return frame, nil
	}
}
