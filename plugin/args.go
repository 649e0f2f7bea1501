package plugin

import (
	"fmt"

	"github.com/log-store/log-ship/errors"
)

// Args is a driver's decoded argument table from the configuration file.
// TOML decoding yields string, bool, int64, float64, and []any values;
// the accessors below normalize those.
type Args map[string]any

// String extracts a string value with a default fallback
func (a Args) String(key, defaultValue string) string {
	if v, ok := a[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultValue
}

// RequiredString extracts a string value, failing when the key is missing
// or has the wrong type
func (a Args) RequiredString(plugin, key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", errors.WrapInvalid(
			fmt.Errorf("could not find %q arg for %s", key, plugin),
			"Args", "RequiredString", "argument lookup")
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.WrapInvalid(
			fmt.Errorf("the %q arg for %s does not appear to be a string", key, plugin),
			"Args", "RequiredString", "argument type check")
	}
	return s, nil
}

// Int extracts an integer value with a default fallback
func (a Args) Int(key string, defaultValue int) int {
	if v, ok := a[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			if n == float64(int(n)) {
				return int(n)
			}
		}
	}
	return defaultValue
}

// RequiredInt extracts an integer value, failing when the key is missing
// or has the wrong type
func (a Args) RequiredInt(plugin, key string) (int, error) {
	v, ok := a[key]
	if !ok {
		return 0, errors.WrapInvalid(
			fmt.Errorf("could not find %q arg for %s", key, plugin),
			"Args", "RequiredInt", "argument lookup")
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	}
	return 0, errors.WrapInvalid(
		fmt.Errorf("the %q arg for %s does not appear to be an integer", key, plugin),
		"Args", "RequiredInt", "argument type check")
}

// BoolStrict extracts a boolean, failing on a configured non-boolean value
func (a Args) BoolStrict(plugin, key string, defaultValue bool) (bool, error) {
	v, ok := a[key]
	if !ok {
		return defaultValue, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.WrapInvalid(
			fmt.Errorf("the %q arg for %s does not appear to be a boolean", key, plugin),
			"Args", "BoolStrict", "argument type check")
	}
	return b, nil
}

// StringSlice extracts a list of strings; non-string elements are skipped
func (a Args) StringSlice(key string) []string {
	v, ok := a[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Value returns the raw configured value for keys whose type varies by
// driver (the insert_field literal, for instance)
func (a Args) Value(key string) (any, bool) {
	v, ok := a[key]
	return v, ok
}
