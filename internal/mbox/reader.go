// Package mbox splits an mbox stream into raw messages.
//
// A message starts at a "From " separator line carrying an asctime-style
// date. Body lines of the form ">From ", ">>From ", ... are mboxrd-escaped;
// the reader removes one '>' from each.
package mbox

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrMessageTooLarge is returned by Next for a message over the configured
// limit. The reader stays usable; the following call returns the next message.
var ErrMessageTooLarge = errors.New("mbox message exceeds max size")

// ErrNotMbox is returned by Validate when no separator is found.
var ErrNotMbox = errors.New("no \"From \" separator found (not an mbox file?)")

// Message is one entry of an mbox file.
type Message struct {
	// Index is the zero-based position of the message in the file.
	Index int
	// Separator is the "From " line without its line ending.
	Separator string
	// Date is the separator's timestamp; zero if it had none.
	Date time.Time
	// Raw is the RFC 5322 message with the separator removed and mboxrd
	// escaping undone. Line endings are left as found.
	Raw []byte
}

// Reader reads messages one at a time, so memory use is bounded by the
// largest message rather than the file.
type Reader struct {
	br *bufio.Reader

	pending     []byte // separator line already consumed for the next message
	havePending bool
	eof         bool
	index       int

	maxMessageBytes int64
	unescape        bool
}

// NewReader returns a Reader with no size limit.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		br:       bufio.NewReaderSize(r, 64<<10),
		unescape: true,
	}
}

// NewReaderWithMaxMessageBytes returns a Reader that rejects messages larger
// than maxMessageBytes. A limit of zero or less disables the check.
func NewReaderWithMaxMessageBytes(r io.Reader, maxMessageBytes int64) *Reader {
	rd := NewReader(r)
	rd.maxMessageBytes = maxMessageBytes
	return rd
}

// SetUnescapeFrom turns mboxrd unescaping on or off. It is on by default.
func (r *Reader) SetUnescapeFrom(enabled bool) {
	r.unescape = enabled
}

// Next returns the next message, or io.EOF after the last one. Text before
// the first separator is ignored.
func (r *Reader) Next() (*Message, error) {
	if !r.havePending {
		if err := r.seekSeparator(); err != nil {
			return nil, err
		}
	}
	sep := bytes.TrimRight(r.pending, "\r\n")
	msg := &Message{Index: r.index, Separator: string(sep)}
	msg.Date, _ = ParseSeparatorDate(msg.Separator)
	r.index++
	r.havePending = false

	var raw bytes.Buffer
	tooLarge := false
	for !r.eof {
		line, err := r.br.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read mbox: %w", err)
		}
		if err == io.EOF {
			r.eof = true
		}
		if len(line) == 0 {
			continue
		}
		if IsSeparator(line) {
			r.pending = line
			r.havePending = true
			break
		}
		if tooLarge {
			continue
		}
		if r.unescape {
			line = unescapeFrom(line)
		}
		if r.maxMessageBytes > 0 && int64(raw.Len()+len(line)) > r.maxMessageBytes {
			tooLarge = true
			raw.Reset()
			continue
		}
		raw.Write(line)
	}

	if tooLarge {
		return msg, fmt.Errorf("message %d: %w (limit %d bytes)", msg.Index, ErrMessageTooLarge, r.maxMessageBytes)
	}
	msg.Raw = trimSeparatorGap(raw.Bytes())
	return msg, nil
}

// seekSeparator advances to the first separator line.
func (r *Reader) seekSeparator() error {
	for {
		if r.eof {
			return io.EOF
		}
		line, err := r.br.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read mbox: %w", err)
		}
		if err == io.EOF {
			r.eof = true
		}
		if IsSeparator(line) {
			r.pending = line
			r.havePending = true
			return nil
		}
	}
}

// trimSeparatorGap drops the single blank line writers put before the next
// separator.
func trimSeparatorGap(raw []byte) []byte {
	switch {
	case bytes.HasSuffix(raw, []byte("\r\n\r\n")):
		return raw[:len(raw)-2]
	case bytes.HasSuffix(raw, []byte("\n\n")):
		return raw[:len(raw)-1]
	}
	return raw
}

var fromPrefix = []byte("From ")

// IsSeparator reports whether line is an mbox "From " separator. A line
// starting with "From " only counts when it also carries a date, which keeps
// unescaped body text from splitting a message.
func IsSeparator(line []byte) bool {
	if !bytes.HasPrefix(line, fromPrefix) {
		return false
	}
	_, ok := ParseSeparatorDate(string(bytes.TrimRight(line, "\r\n")))
	return ok
}

// unescapeFrom removes one leading '>' from lines matching ^>+From .
func unescapeFrom(line []byte) []byte {
	i := 0
	for i < len(line) && line[i] == '>' {
		i++
	}
	if i > 0 && bytes.HasPrefix(line[i:], fromPrefix) {
		return line[1:]
	}
	return line
}

// Validate reports ErrNotMbox unless a separator appears within the first
// maxBytes of r.
func Validate(r io.Reader, maxBytes int64) error {
	if maxBytes <= 0 {
		return fmt.Errorf("maxBytes must be > 0")
	}
	br := bufio.NewReader(io.LimitReader(r, maxBytes))
	for {
		line, err := br.ReadBytes('\n')
		if IsSeparator(line) {
			return nil
		}
		if err == io.EOF {
			return ErrNotMbox
		}
		if err != nil {
			return err
		}
	}
}

// Count returns the number of separators in r without retaining message
// bodies.
func Count(r io.Reader) (int, error) {
	br := bufio.NewReaderSize(r, 64<<10)
	n := 0
	for {
		line, err := br.ReadSlice('\n')
		if bytes.HasPrefix(line, fromPrefix) && IsSeparator(line) {
			n++
		}
		switch {
		case err == nil:
		case errors.Is(err, bufio.ErrBufferFull):
			// Long body line; drain the rest of it so the next read starts a
			// fresh line.
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = br.ReadSlice('\n')
			}
			if err == io.EOF {
				return n, nil
			}
			if err != nil {
				return n, err
			}
		case err == io.EOF:
			return n, nil
		default:
			return n, err
		}
	}
}

// CountFile is Count over the named file.
func CountFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Count(f)
}
