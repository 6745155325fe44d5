// Package report writes detection reports as JSON or YAML.
package report

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	cgio "github.com/hed1ad/custguard/pkg/io"
)

var (
	log  = logrus.WithField("component", "io.report.Writer")
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// Supported formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// New starts a report for command with a fresh run id.
func New(command string) *cgio.Report {
	return &cgio.Report{
		RunID:       uuid.NewString(),
		Command:     command,
		GeneratedAt: time.Now().UTC(),
	}
}

// Writer encodes reports to an output stream.
type Writer struct {
	out    io.Writer
	closer io.Closer
	format string
}

// Option configures a Writer.
type Option func(*Writer)

// WithFormat selects json or yaml output.
func WithFormat(format string) Option {
	return func(w *Writer) {
		w.format = format
	}
}

// NewWriter writes to out. Close does not close out.
func NewWriter(out io.Writer, opts ...Option) (*Writer, error) {
	w := &Writer{out: out, format: FormatJSON}
	for _, opt := range opts {
		opt(w)
	}
	if w.format != FormatJSON && w.format != FormatYAML {
		return nil, errors.Errorf("unsupported report format %q", w.format)
	}
	return w, nil
}

// NewFileWriter creates path and writes reports to it. An empty path or "-"
// writes to stdout.
func NewFileWriter(path string, opts ...Option) (*Writer, error) {
	if path == "" || path == "-" {
		return NewWriter(os.Stdout, opts...)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating report %s", path)
	}
	w, err := NewWriter(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Write encodes one report.
func (w *Writer) Write(r *cgio.Report) error {
	var (
		data []byte
		err  error
	)
	switch w.format {
	case FormatYAML:
		data, err = yaml.Marshal(r)
	default:
		data, err = json.MarshalIndent(r, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.Wrapf(err, "encoding %s report", w.format)
	}
	if _, err := w.out.Write(data); err != nil {
		return errors.Wrap(err, "writing report")
	}

	log.WithFields(logrus.Fields{
		"run_id": r.RunID,
		"format": w.format,
		"bytes":  len(data),
	}).Debug("report written")
	return nil
}

// Close releases the output file, if any.
func (w *Writer) Close() error {
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

var _ cgio.Writer = (*Writer)(nil)
