package flow

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
)

// printer writes labelled sections to standard output, separated by a blank
// line.
type printer struct {
	w        io.Writer
	sections int
}

func (p *printer) label(label string) error {
	sep := ""
	if p.sections > 0 {
		sep = "\n"
	}
	p.sections++
	_, err := fmt.Fprintf(p.w, "%s%s:\n", sep, label)
	return err
}

func (p *printer) JSON(label string, v any) error {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "format %s", label)
	}
	if err := p.label(label); err != nil {
		return errors.Wrap(err, "write output")
	}
	if _, err := fmt.Fprintf(p.w, "%s\n", pretty); err != nil {
		return errors.Wrap(err, "write output")
	}
	return nil
}

func (p *printer) Text(label string, text string) error {
	if err := p.label(label); err != nil {
		return errors.Wrap(err, "write output")
	}
	if _, err := fmt.Fprintf(p.w, "%s\n", text); err != nil {
		return errors.Wrap(err, "write output")
	}
	return nil
}
