// Package wire provides the overlay message encoding and its framing.
//
// Messages are protobuf envelopes, length-delimited using protobuf's
// standard varint encoding. This allows efficient streaming of
// variable-length messages over TCP.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/proto"

	"github.com/xtxerr/treemon/config"
	"github.com/xtxerr/treemon/internal/errors"
	pb "github.com/xtxerr/treemon/internal/proto"
)

// Reader reads length-delimited messages from an io.Reader.
// It is safe for concurrent use.
type Reader struct {
	r       *bufio.Reader
	maxSize int
	mu      sync.Mutex
}

// NewReader creates a Reader wrapping the given io.Reader.
// A maxSize of zero uses config.DefaultMaxMessageSize.
func NewReader(r io.Reader, maxSize int) *Reader {
	if maxSize <= 0 {
		maxSize = config.DefaultMaxMessageSize
	}
	return &Reader{r: bufio.NewReader(r), maxSize: maxSize}
}

// Read reads and decodes the next message.
// Returns ErrMessageTooLarge if the frame exceeds the size limit and io.EOF
// at a clean end of stream.
func (r *Reader) Read() (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	env := &pb.Envelope{}
	opts := protodelim.UnmarshalOptions{
		MaxSize: int64(r.maxSize),
	}
	if err := opts.UnmarshalFrom(r.r, env); err != nil {
		var tooLarge *protodelim.SizeTooLargeError
		switch {
		case err == io.EOF:
			return nil, io.EOF
		case errors.As(err, &tooLarge):
			return nil, fmt.Errorf("frame of %d bytes, limit %d: %w", tooLarge.Size, tooLarge.MaxSize, errors.ErrMessageTooLarge)
		case errors.Is(err, proto.Error):
			return nil, fmt.Errorf("read envelope: %v: %w", err, errors.ErrProtocolViolation)
		}
		return nil, fmt.Errorf("read envelope: %w", err)
	}
	return fromEnvelope(env)
}

// Writer writes length-delimited messages to an io.Writer.
// It is safe for concurrent use.
type Writer struct {
	w       io.Writer
	maxSize int
	mu      sync.Mutex
}

// NewWriter creates a Writer wrapping the given io.Writer.
// A maxSize of zero uses config.DefaultMaxMessageSize.
func NewWriter(w io.Writer, maxSize int) *Writer {
	if maxSize <= 0 {
		maxSize = config.DefaultMaxMessageSize
	}
	return &Writer{w: w, maxSize: maxSize}
}

// Write encodes and writes a message with its length prefix.
func (w *Writer) Write(m *Message) error {
	env, err := toEnvelope(m)
	if err != nil {
		return err
	}
	if size := proto.Size(env); size > w.maxSize {
		return fmt.Errorf("%s of %d bytes, limit %d: %w", m.Kind, size, w.maxSize, errors.ErrMessageTooLarge)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := protodelim.MarshalTo(w.w, env); err != nil {
		return fmt.Errorf("write %s: %w", m.Kind, err)
	}
	return nil
}

// Conn combines Reader and Writer for bidirectional communication.
type Conn struct {
	*Reader
	*Writer
}

// NewConn creates a Conn from an io.ReadWriter (e.g., net.Conn).
func NewConn(rw io.ReadWriter, maxSize int) *Conn {
	return &Conn{
		Reader: NewReader(rw, maxSize),
		Writer: NewWriter(rw, maxSize),
	}
}
