// Package sse reads server-sent event data frames from a streaming response body.
package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// DoneSentinel is the payload that terminates an OpenAI-style event stream.
const DoneSentinel = "[DONE]"

// ErrUnterminated reports a body that ended before the [DONE] sentinel arrived.
var ErrUnterminated = errors.New("event stream ended without [DONE]")

// maxLineSize bounds a single data line; backend chunks are far smaller.
const maxLineSize = 1024 * 1024

// Reader yields the payload of each "data:" line in arrival order.
//
// Blank lines, comments and non-data fields are skipped. Only the [DONE] sentinel
// ends the stream cleanly: EOF before it is reported as ErrUnterminated, and any
// other read failure is reported by Err.
type Reader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	current string
	err     error
	done    bool

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewReader wraps a response body. The reader owns body and closes it on Close.
func NewReader(body io.ReadCloser) *Reader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{body: body, scanner: scanner}
}

// Next advances to the next data payload
func (r *Reader) Next() bool {
	if r.done || r.closed.Load() {
		return false
	}

	for r.scanner.Scan() {
		if r.closed.Load() {
			r.done = true
			return false
		}

		line := r.scanner.Text()

		if !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimPrefix(line, "data:")
		payload = strings.TrimPrefix(payload, " ")

		if payload == DoneSentinel {
			r.done = true
			return false
		}

		r.current = payload
		return true
	}

	r.done = true
	if !r.closed.Load() {
		r.err = r.scanner.Err()
		if r.err == nil {
			r.err = ErrUnterminated
		}
	}
	return false
}

// Data returns the current payload
func (r *Reader) Data() string {
	return r.current
}

// Err returns the read error that ended the stream, if any
func (r *Reader) Err() error {
	return r.err
}

// Close releases the underlying body. It may be called from another goroutine
// to abort a blocked Next; reads failing after Close are not reported as errors.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.closeErr = r.body.Close()
	})
	return r.closeErr
}
