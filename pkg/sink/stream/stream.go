// Package stream writes and replays reading captures.
package stream

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/robotalks/spc.go/pkg/msgs"
	"github.com/robotalks/spc.go/pkg/sink"
)

// Each record is prefixed by 4-byte (little-endian) indicate the length
// of the protobuf encoded Reading.

// MaxRecordSize bounds a record, a Reading encodes to well under 1KiB.
const MaxRecordSize = 64 * 1024

// Writer implements sink.Sink on an io.Writer.
type Writer struct {
	w    io.Writer
	lock sync.Mutex
}

// NewWriter creates a Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Publish implements sink.Sink.
func (w *Writer) Publish(ctx context.Context, r *msgs.Reading) error {
	rec, err := r.Encode()
	if err != nil {
		return err
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	size := uint32(len(rec))
	if err := binary.Write(w.w, binary.LittleEndian, size); err != nil {
		return err
	}
	_, err = w.w.Write(rec)
	return err
}

// Close closes the underlying writer if it is an io.Closer.
func (w *Writer) Close() error {
	if closer, ok := w.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Reader reads records written by Writer.
type Reader struct {
	r io.Reader
}

// NewReader creates a Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next reads the next reading, io.EOF at the end of the stream.
func (r *Reader) Next() (*msgs.Reading, error) {
	var size uint32
	if err := binary.Read(r.r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size > MaxRecordSize {
		return nil, fmt.Errorf("record size %d exceeds %d", size, MaxRecordSize)
	}
	rec := make([]byte, size)
	if _, err := io.ReadFull(r.r, rec); err != nil {
		return nil, err
	}
	return msgs.DecodeReading(rec)
}

// Replay publishes all readings of the stream to s.
func (r *Reader) Replay(ctx context.Context, s sink.Sink) (n int, err error) {
	for {
		if err = ctx.Err(); err != nil {
			return
		}
		var reading *msgs.Reading
		if reading, err = r.Next(); err != nil {
			if err == io.EOF {
				err = nil
			}
			return
		}
		if err = s.Publish(ctx, reading); err != nil {
			return
		}
		n++
	}
}
