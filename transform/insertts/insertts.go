// Package insertts provides the insert_ts transform: stamp structured
// records with the current time under a configured field.
package insertts

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/plugin"
)

// TypeName is the configuration type of this transform
const TypeName = "insert_ts"

// DefaultField is the field used when "field" is not configured
const DefaultField = "t"

// Timestamp formats accepted by the ts_type arg
const (
	FormatEpoch   = "epoch"    // fractional-second Unix epoch, the default
	FormatEpochMS = "epoch_ms" // integer milliseconds
	FormatRFC3339 = "rfc3339"
	FormatRFC2822 = "rfc2822"
)

// Transform stamps records with the current time
type Transform struct {
	name      string
	field     string
	tsType    string
	overwrite bool
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an insert_ts transform from its configured arguments
func New(name string, args plugin.Args, deps plugin.Dependencies) (plugin.Transform, error) {
	field := args.String("field", DefaultField)

	tsType := args.String("ts_type", FormatEpoch)
	switch tsType {
	case FormatEpoch, FormatEpochMS, FormatRFC3339, FormatRFC2822:
	default:
		return nil, errors.WrapFatal(
			fmt.Errorf("timestamp type is unknown: %s", tsType),
			TypeName, "New", "ts_type check")
	}

	overwrite, err := args.BoolStrict(TypeName, "overwrite", false)
	if err != nil {
		return nil, err
	}

	return &Transform{
		name:      name,
		field:     field,
		tsType:    tsType,
		overwrite: overwrite,
		logger:    deps.ComponentLogger(TypeName, name),
		now:       time.Now,
	}, nil
}

// Name implements plugin.Transform
func (t *Transform) Name() string { return t.name }

// Apply stamps the record, honoring the overwrite policy. Raw payloads are
// user error: drop with an error, never a crash.
func (t *Transform) Apply(rec event.Record) (event.Record, bool, error) {
	if !rec.IsStructured() {
		return rec, false, errors.WrapInvalid(
			errors.ErrNotStructured, TypeName, "Apply", "payload check")
	}

	fields := rec.Fields()
	if _, exists := fields[t.field]; exists && !t.overwrite {
		return rec, true, nil
	}

	now := t.now().UTC()
	switch t.tsType {
	case FormatEpoch:
		fields[t.field] = float64(now.UnixNano()) / float64(time.Second)
	case FormatEpochMS:
		fields[t.field] = now.UnixMilli()
	case FormatRFC3339:
		fields[t.field] = now.Format(time.RFC3339Nano)
	case FormatRFC2822:
		fields[t.field] = now.Format("Mon, 02 Jan 2006 15:04:05 -0700")
	}

	return rec, true, nil
}

// Register registers the insert_ts transform with the given registry
func Register(registry *plugin.Registry) error {
	return registry.RegisterTransformType(TypeName, New)
}
