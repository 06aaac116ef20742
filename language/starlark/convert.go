package starlark

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
)

// toGo converts arguments for host functions.
func toGo(v starlark.Value) (any, error) {
	switch v := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		if n, ok := v.Int64(); ok {
			return n, nil
		}
		return v.String(), nil
	case starlark.Float:
		return float64(v), nil
	case starlark.String:
		return string(v), nil
	case *starlark.List:
		return iterableToGo(v)
	case starlark.Tuple:
		return iterableToGo(v)
	case *starlark.Dict:
		m := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict keys must be strings, got %s", item[0].Type())
			}
			val, err := toGo(item[1])
			if err != nil {
				return nil, err
			}
			m[string(key)] = val
		}
		return m, nil
	default:
		return nil, fmt.Errorf("cannot convert %s", v.Type())
	}
}

func iterableToGo(v starlark.Indexable) ([]any, error) {
	out := make([]any, v.Len())
	for i := range out {
		val, err := toGo(v.Index(i))
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

// fromGo converts host function results. Unknown types are rendered as
// strings.
func fromGo(v any) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(v)
	case int:
		return starlark.MakeInt(v)
	case int64:
		return starlark.MakeInt64(v)
	case float64:
		return starlark.Float(v)
	case string:
		return starlark.String(v)
	case []string:
		elems := make([]starlark.Value, len(v))
		for i, s := range v {
			elems[i] = starlark.String(s)
		}
		return starlark.NewList(elems)
	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			elems[i] = fromGo(e)
		}
		return starlark.NewList(elems)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(v))
		for _, k := range keys {
			d.SetKey(starlark.String(k), fromGo(v[k]))
		}
		return d
	default:
		return starlark.String(fmt.Sprint(v))
	}
}
