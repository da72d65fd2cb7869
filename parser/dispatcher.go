package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnsupportedFormat is returned when no parser is registered for a
// file's extension.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrFileTooLarge is returned when a file exceeds the dispatcher's size bound.
var ErrFileTooLarge = errors.New("file exceeds maximum size")

// ErrParseTimeout is returned when a single-format parser exceeds its
// deadline. No partial ParseResult is returned in this case.
var ErrParseTimeout = errors.New("parse-timeout")

const (
	// DefaultMaxFileSizeBytes is the documented 100 MB size bound.
	DefaultMaxFileSizeBytes int64 = 100 * 1024 * 1024
	// DefaultParseTimeout is the documented 60s per-file timeout.
	DefaultParseTimeout = 60 * time.Second
)

// Dispatcher is the single entry point mapping a source file to a
// uniform ParseResult (§4.A). It rejects unsupported extensions and
// oversized files before dispatch, and bounds each parser's run with a
// timeout so no partial document leaks upward.
type Dispatcher struct {
	parsers         map[string]Parser
	maxFileSize     int64
	parseTimeout    time.Duration
}

// NewDispatcher builds a Dispatcher with the built-in format parsers
// registered. maxFileSize and parseTimeout fall back to the documented
// defaults when zero.
func NewDispatcher(maxFileSize int64, parseTimeout time.Duration) *Dispatcher {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSizeBytes
	}
	if parseTimeout <= 0 {
		parseTimeout = DefaultParseTimeout
	}

	d := &Dispatcher{
		parsers:      make(map[string]Parser),
		maxFileSize:  maxFileSize,
		parseTimeout: parseTimeout,
	}
	for _, p := range []Parser{
		&TextParser{},
		&PDFParser{},
		&DOCXParser{},
		&PPTXParser{},
		&XLSXParser{},
		&CSVParser{},
		&JSONParser{},
		&HTMLParser{},
		&RTFParser{},
	} {
		for _, format := range p.SupportedFormats() {
			d.parsers[format] = p
		}
	}
	return d
}

// Register overrides or adds the parser used for a given extension.
func (d *Dispatcher) Register(format string, p Parser) {
	d.parsers[format] = p
}

// SupportsExtension reports whether a parser is registered for the given
// lowercased, dot-free extension, letting callers reject an unsupported
// format before doing any other work on the file.
func (d *Dispatcher) SupportsExtension(ext string) bool {
	_, ok := d.parsers[strings.ToLower(ext)]
	return ok
}

// MaxFileSizeBytes returns the dispatcher's configured size bound, so a
// caller can reject an oversized file before Parse does.
func (d *Dispatcher) MaxFileSizeBytes() int64 {
	return d.maxFileSize
}

// Parse dispatches path to the parser registered for its lowercased
// extension, guarding with a size check and a timeout.
func (d *Dispatcher) Parse(ctx context.Context, path string) (*ParseResult, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	p, ok := d.parsers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > d.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, info.Size(), d.maxFileSize)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, d.parseTimeout)
	defer cancel()

	type outcome struct {
		result *ParseResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := p.Parse(timeoutCtx, path)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-timeoutCtx.Done():
		return nil, ErrParseTimeout
	}
}
