// Package script provides the script transform: user parsing code loaded
// from a file and evaluated once per record by an embedded Starlark
// interpreter (a Python dialect).
//
// The callable's return value decides the record's fate: a dict becomes the
// transformed payload, None drops the record silently, and anything else —
// including a raised error — drops the record with a logged error. Script
// failures never stop a route.
package script

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"go.starlark.net/starlark"

	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/plugin"
)

// TypeName is the configuration type of this transform
const TypeName = "script"

// DefaultFunction is the callable looked up when the "function" arg is not
// given
const DefaultFunction = "process"

// interpMu serializes interpreter entry process-wide. Routes sharing the
// script transform kind must not evaluate concurrently.
var interpMu sync.Mutex

// Transform evaluates a user script callable per record
type Transform struct {
	name     string
	path     string
	argType  string // "str" or "dict"
	callable starlark.Callable
	logger   *slog.Logger
}

// New loads the script, resolves the named callable, and validates the
// argument type. The script runs once here; per-record work happens in
// Apply.
func New(name string, args plugin.Args, deps plugin.Dependencies) (plugin.Transform, error) {
	path, err := args.RequiredString(TypeName, "path")
	if err != nil {
		return nil, err
	}

	functionName := args.String("function", DefaultFunction)

	argType, err := args.RequiredString(TypeName, "arg_type")
	if err != nil {
		return nil, err
	}
	if argType != "str" && argType != "dict" {
		return nil, errors.WrapFatal(
			fmt.Errorf("the 'arg_type' for %s must be one of: str or dict", TypeName),
			TypeName, "New", "arg_type check")
	}

	code, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, TypeName, "New", fmt.Sprintf("reading script %s", path))
	}

	interpMu.Lock()
	defer interpMu.Unlock()

	thread := &starlark.Thread{Name: "log-ship-load"}
	globals, err := starlark.ExecFile(thread, path, code, nil)
	if err != nil {
		return nil, errors.WrapFatal(err, TypeName, "New", fmt.Sprintf("parsing script %s", path))
	}

	value, ok := globals[functionName]
	if !ok {
		return nil, errors.WrapFatal(
			fmt.Errorf("unable to find a function named %q in script %s", functionName, path),
			TypeName, "New", "callable lookup")
	}
	callable, ok := value.(starlark.Callable)
	if !ok {
		return nil, errors.WrapFatal(
			fmt.Errorf("%q in script %s is not callable", functionName, path),
			TypeName, "New", "callable check")
	}

	return &Transform{
		name:     name,
		path:     path,
		argType:  argType,
		callable: callable,
		logger:   deps.ComponentLogger(TypeName, name),
	}, nil
}

// Name implements plugin.Transform
func (t *Transform) Name() string { return t.name }

// Apply marshals the payload into the script's argument form, invokes the
// callable under the interpreter lock, and interprets the result.
func (t *Transform) Apply(rec event.Record) (event.Record, bool, error) {
	arg, err := t.marshalArg(rec)
	if err != nil {
		return rec, false, err
	}

	interpMu.Lock()
	thread := &starlark.Thread{Name: "log-ship"}
	result, err := starlark.Call(thread, t.callable, starlark.Tuple{arg}, nil)
	interpMu.Unlock()

	if err != nil {
		return rec, false, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrScriptFailed, err),
			TypeName, "Apply", "callable invocation")
	}

	switch v := result.(type) {
	case starlark.NoneType:
		// Sanctioned drop: no log, cursor still advances
		return rec, false, nil
	case *starlark.Dict:
		fields, err := dictToGo(v)
		if err != nil {
			return rec, false, errors.WrapInvalid(err, TypeName, "Apply", "result conversion")
		}
		return rec.WithFields(fields), true, nil
	default:
		return rec, false, errors.WrapInvalid(
			fmt.Errorf("%w: script returned %s, expected dict or None", errors.ErrScriptFailed, result.Type()),
			TypeName, "Apply", "result check")
	}
}

// marshalArg builds the single argument passed to the callable
func (t *Transform) marshalArg(rec event.Record) (starlark.Value, error) {
	if t.argType == "str" {
		if rec.IsStructured() {
			line, err := rec.MarshalLine()
			if err != nil {
				return nil, err
			}
			return starlark.String(line), nil
		}
		return starlark.String(rec.Raw()), nil
	}

	// dict mode
	fields := rec.Fields()
	if !rec.IsStructured() {
		parsed, err := event.ParseJSON(rec.Raw())
		if err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: script requested the log as a dict, non-JSON log provided", errors.ErrNotStructured),
				TypeName, "marshalArg", "payload conversion")
		}
		fields = parsed
	}

	return mapToStarlark(fields)
}

// Register registers the script transform with the given registry
func Register(registry *plugin.Registry) error {
	return registry.RegisterTransformType(TypeName, New)
}
