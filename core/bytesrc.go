/*
 * This file is subject to the terms and conditions defined in
 * file 'LICENSE.md', which is part of this source code package.
 */

package core

import (
	"bufio"
	"errors"
	"io"
)

// errUnexpectedEOF is returned by byteSource reads that require at least one
// more byte but find the underlying source exhausted.
var errUnexpectedEOF = io.ErrUnexpectedEOF

// byteSource is a thin peek/next/line layer over a buffered, seekable byte
// stream. It underlies the tokenizer and, directly, the classical xref table
// reader and the endstream fallback reader.
type byteSource struct {
	rs  io.ReadSeeker
	buf *bufio.Reader
}

func newByteSource(rs io.ReadSeeker) *byteSource {
	return &byteSource{rs: rs, buf: bufio.NewReaderSize(rs, 4096)}
}

// seek moves the underlying cursor to an absolute offset and resets the
// buffer (any buffered bytes are no longer valid once the cursor jumps).
func (b *byteSource) seek(offset int64) error {
	if _, err := b.rs.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	b.buf.Reset(b.rs)
	return nil
}

// position returns the current absolute file offset, accounting for bytes
// still sitting in the read buffer.
func (b *byteSource) position() (int64, error) {
	cur, err := b.rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	return cur - int64(b.buf.Buffered()), nil
}

// peek returns the next byte without consuming it.
func (b *byteSource) peek() (byte, error) {
	p, err := b.buf.Peek(1)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, errUnexpectedEOF
		}
		return 0, err
	}
	return p[0], nil
}

// peekN returns up to n bytes without consuming them; it may return fewer
// than n bytes (and no error) near EOF.
func (b *byteSource) peekN(n int) ([]byte, error) {
	p, err := b.buf.Peek(n)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	return p, nil
}

// nextOrEOF consumes and returns one byte, failing with errUnexpectedEOF if
// the source is exhausted.
func (b *byteSource) nextOrEOF() (byte, error) {
	c, err := b.buf.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, errUnexpectedEOF
		}
		return 0, err
	}
	return c, nil
}

// nextIf consumes and returns the next byte if it satisfies cond; otherwise
// it leaves the cursor untouched and returns (0, false).
func (b *byteSource) nextIf(cond func(byte) bool) (byte, bool, error) {
	p, err := b.buf.Peek(1)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if !cond(p[0]) {
		return 0, false, nil
	}
	b.buf.Discard(1)
	return p[0], true, nil
}

// discard consumes n bytes unconditionally.
func (b *byteSource) discard(n int) error {
	_, err := b.buf.Discard(n)
	return err
}

// readLineExcl reads up to the next line terminator and returns the bytes
// before it, consuming the terminator but not returning it. Recognises \r,
// \n, and \r\n as terminators; an \n immediately following a \r is consumed
// as part of that same terminator, not treated as an empty following line.
func (b *byteSource) readLineExcl() ([]byte, error) {
	var out []byte
	for {
		c, err := b.buf.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(out) == 0 {
					return nil, errUnexpectedEOF
				}
				return out, nil
			}
			return nil, err
		}
		switch c {
		case '\n':
			return out, nil
		case '\r':
			if _, _, err := b.nextIf(func(c byte) bool { return c == '\n' }); err != nil {
				return nil, err
			}
			return out, nil
		default:
			out = append(out, c)
		}
	}
}

// readLineIncl is like readLineExcl but the returned slice includes the
// terminating EOL bytes (used by the endstream fallback reader, which must
// search the terminator text itself for "endstream").
func (b *byteSource) readLineIncl() ([]byte, error) {
	var out []byte
	for {
		c, err := b.buf.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(out) == 0 {
					return nil, errUnexpectedEOF
				}
				return out, nil
			}
			return nil, err
		}
		out = append(out, c)
		if c == '\n' {
			return out, nil
		}
		if c == '\r' {
			if nc, ok, err := b.nextIf(func(c byte) bool { return c == '\n' }); err != nil {
				return nil, err
			} else if ok {
				out = append(out, nc)
			}
			return out, nil
		}
	}
}

// skipPastEOL advances past the next line terminator (\r, \n, or \r\n)
// without retaining the skipped bytes.
func (b *byteSource) skipPastEOL() error {
	_, err := b.readLineExcl()
	return err
}
