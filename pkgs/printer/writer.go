package printer

import (
	"bytes"
	"context"
	"io"
)

type writerKey struct{}

// WithWriter attaches w to ctx. Printers derived with Ctx write to it.
func WithWriter(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, writerKey{}, w)
}

// WriterFrom returns the writer attached with WithWriter.
func WriterFrom(ctx context.Context) (io.Writer, bool) {
	w, ok := ctx.Value(writerKey{}).(io.Writer)
	return w, ok
}

// DeferredWriter holds everything written to it until Flush, so that report
// output lands after the streamed output of commands. Once flushed it writes
// straight through.
type DeferredWriter struct {
	held    bytes.Buffer
	out     io.Writer
	flushed bool
}

func NewDeferredWriter(out io.Writer) *DeferredWriter {
	return &DeferredWriter{out: out}
}

func (w *DeferredWriter) Write(p []byte) (int, error) {
	if w.flushed {
		return w.out.Write(p)
	}
	return w.held.Write(p)
}

func (w *DeferredWriter) Flush() error {
	w.flushed = true
	_, err := w.held.WriteTo(w.out)
	return err
}
