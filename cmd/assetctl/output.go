package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/dispatch"
)

// batch describes one command's call in each delivery mode. labels name the
// elements in output, usually the input references.
type batch[T any] struct {
	labels  []string
	throw   func() ([]T, error)
	collect func() ([]assetio.Outcome[T], error)
	stream  func(assetio.SuccessCallback[T], assetio.BatchElementErrorCallback) error
	format  func(T) (any, error)
}

// line is the JSON form of one element in collect and stream output
type line struct {
	Index int                        `json:"index"`
	Label string                     `json:"label"`
	Value any                        `json:"value,omitempty"`
	Error *assetio.BatchElementError `json:"error,omitempty"`
}

type printer struct {
	w       io.Writer
	jsonOut bool
	labels  []string
	failed  int
}

func (p *printer) label(i int) string {
	if i < len(p.labels) {
		return p.labels[i]
	}
	return fmt.Sprintf("#%d", i)
}

func (p *printer) success(i int, v any) error {
	if p.jsonOut {
		return p.writeJSON(line{Index: i, Label: p.label(i), Value: v})
	}
	text, err := renderValue(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(p.w, "%s\t%s\n", p.label(i), text)
	return err
}

func (p *printer) failure(i int, berr *assetio.BatchElementError) error {
	p.failed++
	if p.jsonOut {
		return p.writeJSON(line{Index: i, Label: p.label(i), Error: berr})
	}
	_, err := fmt.Fprintf(p.w, "%s\terror\t%s: %s\n", p.label(i), berr.Kind, berr.Message)
	return err
}

func (p *printer) writeJSON(v any) error {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(p.w, string(out))
	return err
}

func renderValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(out), nil
}

// run executes b under the app's policy and prints the elements. Collect and
// stream report element failures inline and then fail the command with a
// count, so the exit status reflects them.
func run[T any](a *app, w io.Writer, b batch[T]) error {
	mode, err := dispatch.ParseMode(a.policy)
	if err != nil {
		return err
	}
	p := &printer{w: w, jsonOut: a.jsonOut, labels: b.labels}

	switch mode {
	case dispatch.ThrowOnFirstError:
		values, err := b.throw()
		if err != nil {
			return err
		}
		for i, v := range values {
			formatted, err := b.format(v)
			if err != nil {
				return err
			}
			if err := p.success(i, formatted); err != nil {
				return err
			}
		}
		return nil

	case dispatch.CollectAsResults:
		outcomes, err := b.collect()
		if err != nil {
			return err
		}
		for i, o := range outcomes {
			if !o.OK() {
				if err := p.failure(i, o.Err); err != nil {
					return err
				}
				continue
			}
			formatted, err := b.format(o.Value)
			if err != nil {
				return err
			}
			if err := p.success(i, formatted); err != nil {
				return err
			}
		}

	case dispatch.StreamViaCallbacks:
		var writeErr error
		err := b.stream(
			func(i int, v T) {
				if writeErr != nil {
					return
				}
				formatted, err := b.format(v)
				if err != nil {
					writeErr = err
					return
				}
				writeErr = p.success(i, formatted)
			},
			func(i int, berr *assetio.BatchElementError) {
				if writeErr != nil {
					return
				}
				writeErr = p.failure(i, berr)
			})
		if err != nil {
			return err
		}
		if writeErr != nil {
			return writeErr
		}
	}

	if p.failed > 0 {
		return fmt.Errorf("%d of %d elements failed", p.failed, len(b.labels))
	}
	return nil
}

func asIs[T any](v T) (any, error) {
	return v, nil
}
