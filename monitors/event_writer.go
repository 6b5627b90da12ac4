package monitors

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/trainkit/core/metric"
	"github.com/YuminosukeSato/trainkit/pkg/errors"
	"github.com/YuminosukeSato/trainkit/pkg/log"
	"github.com/YuminosukeSato/trainkit/train"
)

// EventFileName is the name of the append-only event stream file.
const EventFileName = "events.gob"

// EventWriter streams every scalar, image, and raw event it receives to an
// append-only record file keyed by global step. Each record is a
// length-prefixed, self-contained gob frame, so streams appended by resumed
// runs decode the same way as a single run's. Records are buffered and
// flushed explicitly on triggers; the stream is closed on after_train.
//
// Write failures are caught, logged as sink-local errors, and never
// terminate the run.
type EventWriter struct {
	train.BaseMonitor

	dir  string
	file *os.File
	buf  *bufio.Writer
}

// NewEventWriter creates a writer streaming to dir/events.gob.
func NewEventWriter(dir string) *EventWriter {
	return &EventWriter{dir: dir}
}

// BeforeTrain opens the event stream, appending to an existing file so an
// interrupted run's records survive a resume.
func (w *EventWriter) BeforeTrain() error {
	path := filepath.Join(w.dir, EventFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		// A sink that cannot open its stream stays disabled for the run.
		w.logWriteError(errors.NewSinkWriteError("EventWriter", "open", err))
		return nil
	}
	w.file = file
	w.buf = bufio.NewWriter(file)
	return nil
}

// AddScalar appends a scalar record at the current global step.
func (w *EventWriter) AddScalar(name string, value float64) error {
	return w.write(train.Event{
		WallTime: time.Now(),
		Step:     w.step(),
		Kind:     train.EventScalar,
		Name:     name,
		Value:    value,
	})
}

// AddImage appends an image record at the current global step.
func (w *EventWriter) AddImage(name string, img *metric.Tensor) error {
	return w.write(train.Event{
		WallTime: time.Now(),
		Step:     w.step(),
		Kind:     train.EventImage,
		Name:     name,
		Shape:    img.Shape,
		Data:     img.Data,
	})
}

// AddEvent appends a raw event as-is.
func (w *EventWriter) AddEvent(e train.Event) error {
	return w.write(e)
}

// TriggerStep flushes the buffered records.
func (w *EventWriter) TriggerStep() error {
	w.flush()
	return nil
}

// TriggerEpoch flushes the buffered records.
func (w *EventWriter) TriggerEpoch() error {
	w.flush()
	return nil
}

// AfterTrain flushes and closes the stream.
func (w *EventWriter) AfterTrain() error {
	if w.file == nil {
		return nil
	}
	w.flush()
	if err := w.file.Close(); err != nil {
		w.logWriteError(errors.NewSinkWriteError("EventWriter", "close", err))
	}
	w.file = nil
	w.buf = nil
	return nil
}

func (w *EventWriter) step() int {
	if t := w.Trainer(); t != nil {
		return t.GlobalStep()
	}
	return 0
}

// write appends one framed record: a big-endian uint32 payload length
// followed by the gob-encoded event. A fresh encoder per frame keeps every
// frame independent of its predecessors.
func (w *EventWriter) write(e train.Event) error {
	if w.buf == nil {
		return errors.NewSinkWriteError("EventWriter", "encode", errors.ErrClosedSink)
	}
	var frame bytes.Buffer
	if err := gob.NewEncoder(&frame).Encode(e); err != nil {
		return errors.NewSinkWriteError("EventWriter", "encode", err)
	}
	if err := binary.Write(w.buf, binary.BigEndian, uint32(frame.Len())); err != nil {
		return errors.NewSinkWriteError("EventWriter", "write", err)
	}
	if _, err := w.buf.Write(frame.Bytes()); err != nil {
		return errors.NewSinkWriteError("EventWriter", "write", err)
	}
	return nil
}

// flush pushes buffered records to disk. Failures are sink-local.
func (w *EventWriter) flush() {
	if w.buf == nil {
		return
	}
	if err := w.buf.Flush(); err != nil {
		w.logWriteError(errors.NewSinkWriteError("EventWriter", "flush", err))
	}
}

func (w *EventWriter) logWriteError(err error) {
	log.GetLoggerWithName("monitors.event_writer").Error("event stream write failed",
		log.ErrAttr(err),
		log.PathKey, filepath.Join(w.dir, EventFileName),
	)
}

// ReadEvents decodes every framed record from an event stream written by
// EventWriter, across however many runs appended to it. Useful for offline
// inspection and tests.
func ReadEvents(path string) ([]train.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening event stream")
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var events []train.Event
	for {
		var size uint32
		if err := binary.Read(r, binary.BigEndian, &size); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, errors.Wrap(err, "reading event frame size")
		}
		frame := make([]byte, size)
		if _, err := io.ReadFull(r, frame); err != nil {
			return nil, errors.Wrap(err, "reading event frame")
		}
		var e train.Event
		if err := gob.NewDecoder(bytes.NewReader(frame)).Decode(&e); err != nil {
			return nil, errors.Wrap(err, "decoding event frame")
		}
		events = append(events, e)
	}
	return events, nil
}
