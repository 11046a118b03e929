package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer outputs JSONL records for a tagger job.
//
// Implementations must be safe for concurrent use. Each Write* method emits
// a complete record as a single line of JSON followed by a newline.
type Writer interface {
	WriteJob(ctx context.Context, job *JobRecord) error
	WriteProgress(ctx context.Context, prog *ProgressRecord) error
	WriteOutcome(ctx context.Context, out *OutcomeRecord) error
	WriteError(ctx context.Context, err *ErrorRecord) error

	// SetJobID sets the correlation ID for subsequent records. Records
	// written before a job exists carry an empty ID.
	SetJobID(jobID string)

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// Writes are serialized with a mutex so lines never interleave.
type JSONLWriter struct {
	w     io.Writer
	jobID string
	mu    sync.Mutex

	closed bool
}

// NewJSONLWriter creates a new JSONL writer.
func NewJSONLWriter(w io.Writer, jobID string) *JSONLWriter {
	return &JSONLWriter{w: w, jobID: jobID}
}

func (jw *JSONLWriter) SetJobID(jobID string) {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	jw.jobID = jobID
}

func (jw *JSONLWriter) WriteJob(ctx context.Context, job *JobRecord) error {
	return jw.writeRecord(ctx, TypeJob, job)
}

func (jw *JSONLWriter) WriteProgress(ctx context.Context, prog *ProgressRecord) error {
	return jw.writeRecord(ctx, TypeProgress, prog)
}

func (jw *JSONLWriter) WriteOutcome(ctx context.Context, out *OutcomeRecord) error {
	return jw.writeRecord(ctx, TypeOutcome, out)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, err)
}

// Close marks the writer as closed. The underlying writer is not closed.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals data and writes a complete record line.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}

	record := Record{
		Type:  recordType,
		TS:    time.Now().UTC(),
		JobID: jw.jobID,
		Data:  dataBytes,
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer may return n < len(p) with a nil error; a short write
	// would corrupt the line.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// writeAll writes all bytes to w, handling short writes.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

var _ Writer = (*JSONLWriter)(nil)
