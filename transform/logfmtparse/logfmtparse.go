// Package logfmtparse provides the logfmt transform: parse a raw
// key=value line into a structured payload.
package logfmtparse

import (
	"bytes"
	"log/slog"

	"github.com/go-logfmt/logfmt"

	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/plugin"
)

// TypeName is the configuration type of this transform
const TypeName = "logfmt"

// Transform parses logfmt lines
type Transform struct {
	name   string
	logger *slog.Logger
}

// New creates a logfmt transform; it takes no arguments
func New(name string, _ plugin.Args, deps plugin.Dependencies) (plugin.Transform, error) {
	return &Transform{
		name:   name,
		logger: deps.ComponentLogger(TypeName, name),
	}, nil
}

// Name implements plugin.Transform
func (t *Transform) Name() string { return t.name }

// Apply parses the raw payload. Structured records pass through untouched;
// unparseable lines drop with an error.
func (t *Transform) Apply(rec event.Record) (event.Record, bool, error) {
	if rec.IsStructured() {
		return rec, true, nil
	}

	dec := logfmt.NewDecoder(bytes.NewReader([]byte(rec.Raw())))
	fields := map[string]any{}
	for dec.ScanRecord() {
		for dec.ScanKeyval() {
			fields[string(dec.Key())] = string(dec.Value())
		}
	}
	if err := dec.Err(); err != nil {
		return rec, false, errors.WrapInvalid(err, TypeName, "Apply", "logfmt decode")
	}
	if len(fields) == 0 {
		return rec, false, errors.WrapInvalid(
			errors.ErrParsingFailed, TypeName, "Apply", "logfmt decode")
	}

	return rec.WithFields(fields), true, nil
}

// Register registers the logfmt transform with the given registry
func Register(registry *plugin.Registry) error {
	return registry.RegisterTransformType(TypeName, New)
}
