package generator

import (
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// Converter extracts the plain text of a local document.
type Converter interface {
	Convert(ctx context.Context, path string) (string, error)
}

// CommandRunner runs an external program and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && len(ee.Stderr) > 0 {
			return nil, errors.Wrapf(err, "%s: %s", name, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, errors.Wrap(err, name)
	}
	return out, nil
}

// PdfToText converts PDFs with poppler's pdftotext.
type PdfToText struct {
	Binary string
	Runner CommandRunner
}

func NewPdfToText(binary string) *PdfToText {
	return &PdfToText{Binary: binary, Runner: execRunner{}}
}

func (p *PdfToText) Convert(ctx context.Context, path string) (string, error) {
	out, err := p.Runner.Run(ctx, p.Binary, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return "", errors.Wrap(err, "convert "+path)
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return "", errors.Errorf("convert %s: no text extracted", path)
	}
	return text, nil
}
