package script

import (
	"encoding/json"
	"fmt"
	"math"

	"go.starlark.net/starlark"
)

// mapToStarlark converts a structured payload into a Starlark dict
func mapToStarlark(fields map[string]any) (*starlark.Dict, error) {
	dict := starlark.NewDict(len(fields))
	for k, v := range fields {
		sv, err := toStarlark(v)
		if err != nil {
			return nil, err
		}
		if err := dict.SetKey(starlark.String(k), sv); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

// toStarlark converts one structured value node
func toStarlark(v any) (starlark.Value, error) {
	switch t := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(t), nil
	case string:
		return starlark.String(t), nil
	case int:
		return starlark.MakeInt(t), nil
	case int64:
		return starlark.MakeInt64(t), nil
	case float64:
		return starlark.Float(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return starlark.MakeInt64(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("cannot represent number %q", t)
		}
		return starlark.Float(f), nil
	case []any:
		list := make([]starlark.Value, 0, len(t))
		for _, item := range t {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			list = append(list, sv)
		}
		return starlark.NewList(list), nil
	case map[string]any:
		return mapToStarlark(t)
	default:
		return nil, fmt.Errorf("cannot convert %T into a script value", v)
	}
}

// dictToGo converts the callable's returned dict into a structured payload
func dictToGo(dict *starlark.Dict) (map[string]any, error) {
	fields := make(map[string]any, dict.Len())
	for _, item := range dict.Items() {
		key, ok := item[0].(starlark.String)
		if !ok {
			return nil, fmt.Errorf("dict key %s is not a string", item[0].String())
		}
		v, err := fromStarlark(item[1])
		if err != nil {
			return nil, err
		}
		fields[string(key)] = v
	}
	return fields, nil
}

// fromStarlark converts one returned value node
func fromStarlark(v starlark.Value) (any, error) {
	switch t := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(t), nil
	case starlark.String:
		return string(t), nil
	case starlark.Int:
		// Keep the digits as a number literal; ints beyond int64 survive too
		return json.Number(t.String()), nil
	case starlark.Float:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("non-finite number %v cannot be serialized", f)
		}
		return f, nil
	case *starlark.List:
		out := make([]any, 0, t.Len())
		for i := 0; i < t.Len(); i++ {
			gv, err := fromStarlark(t.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		return out, nil
	case starlark.Tuple:
		out := make([]any, 0, t.Len())
		for i := 0; i < t.Len(); i++ {
			gv, err := fromStarlark(t.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		return out, nil
	case *starlark.Dict:
		return dictToGo(t)
	default:
		return nil, fmt.Errorf("cannot convert script value of type %s", v.Type())
	}
}
