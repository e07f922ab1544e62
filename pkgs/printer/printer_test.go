package printer

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prettyErr struct{}

func (prettyErr) Error() string  { return "plain" }
func (prettyErr) Pretty() string { return "pretty output\n" }

func TestPrinter_Ctx(t *testing.T) {
	var base, ctxBuf bytes.Buffer
	p := New(&base)

	ctx := WithWriter(context.Background(), &ctxBuf)
	p.Ctx(ctx).LineBreak()
	p.Ctx(context.Background()).LineBreak()

	assert.Equal(t, "\n", ctxBuf.String())
	assert.Equal(t, "\n", base.String())
}

func TestPrinter_StatusList(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).StatusList("Summary", []StatusListItem{
		{Status: StatusOk, Label: "created", Detail: "3"},
		{Status: StatusError, Label: "conflicts", Detail: "1"},
	})

	out := buf.String()
	assert.Contains(t, out, "Summary")
	assert.Contains(t, out, "created")
	assert.Contains(t, out, "conflicts")
}

func TestPrinter_FatalError(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.FatalError(errors.New("first line\nsecond line"))
	assert.Contains(t, buf.String(), "Error")
	assert.Contains(t, buf.String(), "first line")
	assert.Contains(t, buf.String(), "second line")

	buf.Reset()
	p.FatalError(prettyErr{})
	assert.Equal(t, "pretty output\n", buf.String())
}

func TestPrinter_Title(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Title("apply")

	require.Contains(t, buf.String(), "-- apply ")
	assert.Contains(t, buf.String(), "----")
}

func TestDeferredWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewDeferredWriter(&buf)

	_, err := w.Write([]byte("held"))
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	require.NoError(t, w.Flush())
	assert.Equal(t, "held", buf.String())

	_, err = w.Write([]byte(" direct"))
	require.NoError(t, err)
	assert.Equal(t, "held direct", buf.String())

	require.NoError(t, w.Flush())
	assert.Equal(t, "held direct", buf.String())
}

func TestWriterFrom(t *testing.T) {
	_, ok := WriterFrom(context.Background())
	assert.False(t, ok)

	var buf bytes.Buffer
	w, ok := WriterFrom(WithWriter(context.Background(), &buf))
	require.True(t, ok)
	assert.Same(t, &buf, w)
}
