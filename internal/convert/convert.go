package convert

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"outboxapi/internal/apperr"
	"outboxapi/internal/subprocess"
)

const (
	inputName  = "document.docx"
	outputName = "document.pdf"
)

// Runner is the subset of subprocess.Runner the converter needs.
type Runner interface {
	Run(ctx context.Context, job subprocess.Job) (subprocess.Result, error)
}

// Converter renders DOCX to PDF with LibreOffice in headless mode.
type Converter struct {
	runner  Runner
	binary  string
	timeout time.Duration
}

func NewConverter(runner Runner, binary string, timeout time.Duration) *Converter {
	if binary == "" {
		binary = "soffice"
	}
	return &Converter{runner: runner, binary: binary, timeout: timeout}
}

// ToPDF converts docx. Each call uses a fresh LibreOffice profile inside its own
// working directory, so parallel conversions do not contend for a profile lock.
func (c *Converter) ToPDF(ctx context.Context, docx []byte) ([]byte, error) {
	res, err := c.runner.Run(ctx, subprocess.Job{
		Name:   "render",
		Binary: c.binary,
		Args: func(dir string) []string {
			return []string{
				"-env:UserInstallation=file://" + filepath.ToSlash(filepath.Join(dir, "profile")),
				"--headless",
				"--convert-to", "pdf",
				"--outdir", dir,
				filepath.Join(dir, inputName),
			}
		},
		Inputs:  map[string][]byte{inputName: docx},
		Output:  outputName,
		Timeout: c.timeout,
	})
	if err != nil {
		return nil, conversionError(err)
	}
	if len(res.Output) == 0 {
		return nil, apperr.External("renderer", "conversion produced an empty PDF", res.Combined, nil)
	}
	return res.Output, nil
}

func conversionError(err error) error {
	var rerr *subprocess.RunError
	if !errors.As(err, &rerr) {
		return apperr.External("renderer", "document conversion failed", "", err)
	}
	msg := "document conversion failed"
	if errors.Is(err, subprocess.ErrTimeout) {
		msg = "document conversion timed out"
	} else if rerr.ExitCode > 0 {
		msg = fmt.Sprintf("document conversion failed with exit code %d", rerr.ExitCode)
	}
	return apperr.External("renderer", msg, rerr.Combined, err)
}
