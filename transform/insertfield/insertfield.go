// Package insertfield provides the insert_field transform: set a configured
// key to a configured literal value on structured payloads.
package insertfield

import (
	"fmt"
	"log/slog"

	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/plugin"
)

// TypeName is the configuration type of this transform
const TypeName = "insert_field"

// Transform sets a literal field on structured records
type Transform struct {
	name      string
	field     string
	value     any
	overwrite bool
	logger    *slog.Logger
}

// New creates an insert_field transform from its configured arguments. The
// value must be a TOML scalar; tables and arrays are rejected.
func New(name string, args plugin.Args, deps plugin.Dependencies) (plugin.Transform, error) {
	field, err := args.RequiredString(TypeName, "field")
	if err != nil {
		return nil, err
	}

	value, ok := args.Value("value")
	if !ok {
		return nil, errors.WrapFatal(
			fmt.Errorf("could not find 'value' arg for %s", TypeName),
			TypeName, "New", "argument lookup")
	}
	switch value.(type) {
	case string, bool, int, int64, float64:
	default:
		return nil, errors.WrapFatal(
			fmt.Errorf("the 'value' arg for %s must be a string, integer, float, or boolean", TypeName),
			TypeName, "New", "value type check")
	}

	overwrite, err := args.BoolStrict(TypeName, "overwrite", false)
	if err != nil {
		return nil, err
	}

	return &Transform{
		name:      name,
		field:     field,
		value:     value,
		overwrite: overwrite,
		logger:    deps.ComponentLogger(TypeName, name),
	}, nil
}

// Name implements plugin.Transform
func (t *Transform) Name() string { return t.name }

// Apply sets the field, honoring the overwrite policy. A raw payload is
// user error, not a crash: the record drops with an error.
func (t *Transform) Apply(rec event.Record) (event.Record, bool, error) {
	if !rec.IsStructured() {
		return rec, false, errors.WrapInvalid(
			errors.ErrNotStructured, TypeName, "Apply", "payload check")
	}

	fields := rec.Fields()
	if _, exists := fields[t.field]; !exists || t.overwrite {
		fields[t.field] = t.value
	}

	return rec, true, nil
}

// Register registers the insert_field transform with the given registry
func Register(registry *plugin.Registry) error {
	return registry.RegisterTransformType(TypeName, New)
}
