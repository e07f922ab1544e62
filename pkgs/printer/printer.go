// Package printer writes human facing output: titles, status lists and
// error boxes.
package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/hay-kot/dotapply/pkgs/styles"
)

const defaultWidth = 80

// Status is the state shown next to a StatusListItem.
type Status int

const (
	StatusOk Status = iota
	StatusWarn
	StatusError
	StatusInfo
)

type StatusListItem struct {
	Status Status
	Label  string
	Detail string
}

// Printer renders to a single writer. The zero value is not usable, use New.
type Printer struct {
	writer io.Writer
	base   styles.RenderFunc
	light  styles.RenderFunc
}

func New(w io.Writer) *Printer {
	return &Printer{
		writer: w,
		base:   styles.Bold,
		light:  styles.Subtle,
	}
}

// Ctx returns a copy of the printer that writes to the context writer, if one
// was set with WithWriter.
func (p *Printer) Ctx(ctx context.Context) *Printer {
	w, ok := WriterFrom(ctx)
	if !ok {
		return p
	}

	cp := *p
	cp.writer = w
	return &cp
}

func (p *Printer) WithBase(style styles.RenderFunc) *Printer {
	cp := *p
	cp.base = style
	return &cp
}

func (p *Printer) WithLight(style styles.RenderFunc) *Printer {
	cp := *p
	cp.light = style
	return &cp
}

func (p *Printer) print(s string) {
	_, _ = io.WriteString(p.writer, s)
}

func (p *Printer) width() int {
	if f, ok := p.writer.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return defaultWidth
}

func (p *Printer) LineBreak() {
	p.print("\n")
}

// Title prints a bold heading followed by a divider that spans the terminal.
func (p *Printer) Title(title string) {
	prefix := "-- " + title + " "
	rest := max(p.width()-len(prefix), 0)
	p.print(p.base(prefix+strings.Repeat("-", rest)) + "\n")
}

func (p *Printer) List(title string, items []string) {
	if title != "" {
		p.print(p.base(title) + "\n")
	}
	for _, item := range items {
		p.print(fmt.Sprintf("  %s %s\n", styles.Dot, item))
	}
}

func (p *Printer) StatusList(title string, items []StatusListItem) {
	if title != "" {
		p.print(p.base(title) + "\n")
	}

	for _, item := range items {
		var icon string
		switch item.Status {
		case StatusOk:
			icon = styles.Success(styles.Check)
		case StatusWarn:
			icon = styles.Warning(styles.Bang)
		case StatusError:
			icon = styles.ErrorPad(styles.Cross)
		default:
			icon = styles.Subtle(styles.Dot)
		}

		line := icon + " " + item.Label
		if item.Detail != "" {
			line += ": " + p.light(item.Detail)
		}
		p.print(line + "\n")
	}
}

// Pretty is implemented by errors that carry their own terminal rendering.
type Pretty interface {
	Pretty() string
}

// FatalError prints err in an error box. Errors implementing Pretty are
// printed with their own rendering.
func (p *Printer) FatalError(err error) {
	var pretty Pretty
	if errors.As(err, &pretty) {
		p.print(pretty.Pretty())
		return
	}

	p.print(styles.ErrorBox("Error", err.Error()) + "\n")
}
