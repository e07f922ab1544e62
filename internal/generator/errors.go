package generator

import (
	"bufio"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/afero"
)

var (
	// template: name:line:col: message
	reLineCol = regexp.MustCompile(`template: [^:]+:(\d+):(\d+): (.+)`)
	// template: name:line: message
	reLine = regexp.MustCompile(`template: [^:]+:(\d+): (.+)`)
)

// contextLines is the number of source lines shown around the failing line.
const contextLines = 2

// TemplateError is a parse or execution failure of a template, located at a
// line and column of its source when the template package reports one.
type TemplateError struct {
	File    string
	Line    int
	Column  int
	Message string
	Context []string
	Err     error
}

func NewTemplateError(fsys afero.Fs, file string, err error) *TemplateError {
	te := &TemplateError{
		File:    file,
		Message: err.Error(),
		Err:     err,
	}

	te.parseError(err.Error())
	te.loadContext(fsys)
	te.cleanMessage()

	return te
}

func (te *TemplateError) Unwrap() error { return te.Err }

func (te *TemplateError) parseError(errStr string) {
	if m := reLineCol.FindStringSubmatch(errStr); len(m) > 3 {
		te.Line, _ = strconv.Atoi(m[1])
		te.Column, _ = strconv.Atoi(m[2])
		te.Message = m[3]
		return
	}

	if m := reLine.FindStringSubmatch(errStr); len(m) > 2 {
		te.Line, _ = strconv.Atoi(m[1])
		te.Message = m[2]
	}
}

func (te *TemplateError) loadContext(fsys afero.Fs) {
	if te.Line == 0 {
		return
	}

	f, err := fsys.Open(te.File)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan() && n <= te.Line+contextLines; n++ {
		if n >= te.Line-contextLines {
			te.Context = append(te.Context, scanner.Text())
		}
	}
}

func (te *TemplateError) cleanMessage() {
	baseName := filepath.Base(te.File)

	r := strings.NewReplacer(
		fmt.Sprintf(`executing "%s" `, baseName), "",
		fmt.Sprintf(`"%s" `, baseName), "",
		"can't evaluate field", "unknown field",
		"map has no entry for key", "missing key",
		"at <", "accessing variable <",
	)

	te.Message = r.Replace(te.Message)
}

func (te *TemplateError) Error() string {
	if te.Line == 0 {
		return fmt.Sprintf("template error in %s: %s", te.File, te.Message)
	}

	location := fmt.Sprintf("%s:%d", te.File, te.Line)
	if te.Column > 0 {
		location += fmt.Sprintf(":%d", te.Column)
	}

	return fmt.Sprintf("template error at %s: %s", location, te.Message)
}

// Pretty renders the error with the surrounding source lines for terminal
// output.
func (te *TemplateError) Pretty() string {
	if te.Line == 0 {
		return te.Error()
	}

	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	fileStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Underline(true)
	lineNumStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorLineStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	contextStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	pointerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)

	var sb strings.Builder

	sb.WriteString(errorStyle.Render("Template Error") + "\n\n")

	location := fmt.Sprintf("%s:%d", te.File, te.Line)
	if te.Column > 0 {
		location += fmt.Sprintf(":%d", te.Column)
	}
	sb.WriteString(fileStyle.Render(location) + "\n\n")

	if len(te.Context) > 0 {
		startLine := max(te.Line-contextLines, 1)

		for i, line := range te.Context {
			current := startLine + i
			num := fmt.Sprintf("%4d │ ", current)

			if current != te.Line {
				sb.WriteString(lineNumStyle.Render(num))
				sb.WriteString(contextStyle.Render(line) + "\n")
				continue
			}

			sb.WriteString(errorLineStyle.Render(num))
			sb.WriteString(errorLineStyle.Render(line) + "\n")

			if te.Column > 0 && te.Column <= len(line) {
				sb.WriteString(strings.Repeat(" ", 6+te.Column-1) + pointerStyle.Render("^") + "\n")
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString(errorStyle.Render("Error: ") + te.Message + "\n")

	return sb.String()
}
