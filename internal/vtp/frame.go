package vtp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// DefaultMaxFrameLength is the default cap on a declared frame length.
// The protocol imposes no explicit upper bound; this exists only to refuse
// pathologically large length headers, per spec.
const DefaultMaxFrameLength = 64 * 1024 * 1024

const frameHeaderLen = 4

var (
	// ErrFrameClosed indicates the peer performed an orderly shutdown
	// mid-frame (a zero-byte read before the frame was complete).
	ErrFrameClosed = errors.New("vtp: connection closed by peer")
	// ErrFrameTimeout indicates the read deadline elapsed before a
	// complete frame arrived.
	ErrFrameTimeout = errors.New("vtp: timed out reading frame")
	// ErrEmptyFrame indicates a frame declared a length of 0.
	ErrEmptyFrame = errors.New("vtp: frame declared zero length")
	// ErrFrameTooLarge indicates a frame declared a length exceeding the
	// configured maximum.
	ErrFrameTooLarge = errors.New("vtp: frame length exceeds maximum")
)

// ReadFrame reads one length-prefixed frame from conn: a 4-byte big-endian
// length header followed by that many payload bytes. deadline bounds the
// entire read (header plus payload), mirroring the "deadline typically
// equal to iamalive_timeout" requirement — a liveness timeout during a read
// is indistinguishable from a dead peer. maxLen <= 0 uses
// DefaultMaxFrameLength.
func ReadFrame(conn net.Conn, deadline time.Duration, maxLen int) ([]byte, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxFrameLength
	}
	if err := conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
		return nil, fmt.Errorf("vtp: set read deadline: %w", err)
	}

	var header [frameHeaderLen]byte
	if err := readFull(conn, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if uint64(length) > uint64(maxLen) {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if err := readFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// readFull reads exactly len(buf) bytes, translating a zero-byte read (an
// orderly peer shutdown, per POSIX recv(2) semantics) and a deadline
// expiry into the sentinel errors above rather than bubbling up raw net
// errors that callers would otherwise have to re-sniff.
func readFull(conn net.Conn, buf []byte) error {
	_, err := io.ReadFull(conn, buf)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrFrameClosed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrFrameTimeout
	}
	return fmt.Errorf("vtp: read frame: %w", err)
}

// WriteFrame writes payload as one length-prefixed frame. The header and
// payload are concatenated into a single buffer before the write so the
// send is atomic from the peer's point of view, even against a concurrent
// writer on the same socket (the design otherwise keeps writes
// single-threaded per connection).
func WriteFrame(conn net.Conn, payload []byte) error {
	buf := make([]byte, frameHeaderLen+len(payload))
	binary.BigEndian.PutUint32(buf[:frameHeaderLen], uint32(len(payload)))
	copy(buf[frameHeaderLen:], payload)

	_, err := conn.Write(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrFrameTimeout
		}
		return fmt.Errorf("vtp: write frame: %w", err)
	}
	return nil
}
