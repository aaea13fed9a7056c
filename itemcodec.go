package rxdb

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"

	"github.com/andreyvit/rxdb/cjson"
	"github.com/google/uuid"
)

// valueOpts are the per-field encoding flags that apply to a value and to
// the elements of slices, arrays and maps holding it.
type valueOpts struct {
	uuid         bool
	enumAsString bool
}

func (f *Field) opts() valueOpts {
	return valueOpts{uuid: f.UUID, enumAsString: f.EnumAsString}
}

type itemCodec struct {
	models FieldModelProvider
}

// encodeItem converts a struct value into a value tree. Nil and empty-UUID
// fields are omitted.
func (c itemCodec) encodeItem(rv reflect.Value) (cjson.Object, error) {
	model, err := c.models.FieldsOf(rv.Type())
	if err != nil {
		return nil, err
	}
	obj := make(cjson.Object, 0, len(model.Fields))
	for _, f := range model.Fields {
		if f.Transient {
			continue
		}
		fv, err := rv.FieldByIndexErr(f.Index)
		if err != nil {
			// behind a nil embedded pointer
			continue
		}
		v, err := c.encodeValue(fv, f.opts())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.WireName, err)
		}
		if v == nil {
			continue
		}
		obj = append(obj, cjson.Field{Name: f.WireName, Value: v})
	}
	return obj, nil
}

// encodeValue returns nil for values that must be omitted.
func (c itemCodec) encodeValue(rv reflect.Value, o valueOpts) (cjson.Value, error) {
	typ := rv.Type()
	if typ == uuidType {
		return cjson.UUID(rv.Interface().(uuid.UUID)), nil
	}
	if names := enumNames(typ); names != nil {
		ord := enumOrdinal(rv)
		if !o.enumAsString {
			return cjson.Int(ord), nil
		}
		if ord < 0 || ord >= int64(len(names)) {
			return nil, fmt.Errorf("%v value %d has no name: %w", typ, ord, ErrInvalidEnum)
		}
		return cjson.String(names[ord]), nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		return cjson.Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cjson.Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows int64: %w", u, cjson.ErrUnsupportedType)
		}
		return cjson.Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return cjson.Double(rv.Float()), nil
	case reflect.String:
		s := rv.String()
		if !o.uuid {
			return cjson.String(s), nil
		}
		if s == "" {
			return nil, nil
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, cjson.ErrInvalidUUIDFormat)
		}
		return cjson.UUID(u), nil
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		if typ.Elem().Kind() == reflect.Uint8 && enumNames(typ.Elem()) == nil {
			return cjson.String(rv.Bytes()), nil
		}
		return c.encodeArray(rv, o)
	case reflect.Array:
		return c.encodeArray(rv, o)
	case reflect.Map:
		if rv.IsNil() {
			return nil, nil
		}
		if typ.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map key %v: %w", typ.Key(), cjson.ErrUnsupportedType)
		}
		keys := rv.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			return cmp.Compare(a.String(), b.String())
		})
		obj := make(cjson.Object, 0, len(keys))
		for _, k := range keys {
			v, err := c.encodeValue(rv.MapIndex(k), o)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k.String(), err)
			}
			if v == nil {
				continue
			}
			obj = append(obj, cjson.Field{Name: k.String(), Value: v})
		}
		return obj, nil
	case reflect.Struct:
		return c.encodeItem(rv)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return c.encodeValue(rv.Elem(), o)
	default:
		return nil, fmt.Errorf("%v: %w", typ, cjson.ErrUnsupportedType)
	}
}

func (c itemCodec) encodeArray(rv reflect.Value, o valueOpts) (cjson.Value, error) {
	n := rv.Len()
	arr := make(cjson.Array, 0, n)
	for i := range n {
		v, err := c.encodeValue(rv.Index(i), o)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		if v == nil {
			v = cjson.Null{}
		}
		arr = append(arr, v)
	}
	return arr, nil
}

func enumOrdinal(rv reflect.Value) int64 {
	if isUintKind(rv.Kind()) {
		return int64(rv.Uint())
	}
	return rv.Int()
}

// decodeItem fills the struct rv from obj by wire name. Names the model does
// not know are skipped.
func (c itemCodec) decodeItem(obj cjson.Object, rv reflect.Value) error {
	model, err := c.models.FieldsOf(rv.Type())
	if err != nil {
		return err
	}
	for _, fv := range obj {
		f := model.ByWireName(fv.Name)
		if f == nil {
			continue
		}
		if err := c.decodeValue(fv.Value, fieldForSet(rv, f.Index), f.opts()); err != nil {
			return fmt.Errorf("%s: %w", f.WireName, err)
		}
	}
	return nil
}

func (c itemCodec) decodeValue(v cjson.Value, rv reflect.Value, o valueOpts) error {
	if _, null := v.(cjson.Null); null || v == nil {
		rv.SetZero()
		return nil
	}
	typ := rv.Type()
	mismatch := func() error {
		return fmt.Errorf("cannot decode %s into %v: %w", v.Kind(), typ, ErrTypeMismatch)
	}

	if typ == uuidType {
		switch v := v.(type) {
		case cjson.UUID:
			rv.Set(reflect.ValueOf(uuid.UUID(v)))
		case cjson.String:
			u, err := uuid.Parse(string(v))
			if err != nil {
				return fmt.Errorf("%q: %w", string(v), cjson.ErrInvalidUUIDFormat)
			}
			rv.Set(reflect.ValueOf(u))
		default:
			return mismatch()
		}
		return nil
	}
	if names := enumNames(typ); names != nil {
		var ord int64
		switch v := v.(type) {
		case cjson.Int:
			ord = int64(v)
		case cjson.String:
			ord = int64(slices.Index(names, string(v)))
			if ord < 0 {
				return fmt.Errorf("%v has no value named %q: %w", typ, string(v), ErrInvalidEnum)
			}
		default:
			return mismatch()
		}
		if isUintKind(typ.Kind()) {
			rv.SetUint(uint64(ord))
		} else {
			rv.SetInt(ord)
		}
		return nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		b, ok := v.(cjson.Bool)
		if !ok {
			return mismatch()
		}
		rv.SetBool(bool(b))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := integral(v)
		if !ok {
			return mismatch()
		}
		if rv.OverflowInt(n) {
			return fmt.Errorf("%d overflows %v: %w", n, typ, ErrTypeMismatch)
		}
		rv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, ok := integral(v)
		if !ok {
			return mismatch()
		}
		if n < 0 || rv.OverflowUint(uint64(n)) {
			return fmt.Errorf("%d overflows %v: %w", n, typ, ErrTypeMismatch)
		}
		rv.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		switch v := v.(type) {
		case cjson.Double:
			rv.SetFloat(float64(v))
		case cjson.Int:
			rv.SetFloat(float64(v))
		default:
			return mismatch()
		}
	case reflect.String:
		switch v := v.(type) {
		case cjson.String:
			rv.SetString(string(v))
		case cjson.UUID:
			rv.SetString(v.String())
		default:
			return mismatch()
		}
	case reflect.Slice:
		if typ.Elem().Kind() == reflect.Uint8 && enumNames(typ.Elem()) == nil {
			s, ok := v.(cjson.String)
			if !ok {
				return mismatch()
			}
			rv.SetBytes([]byte(s))
			return nil
		}
		arr, ok := v.(cjson.Array)
		if !ok {
			return mismatch()
		}
		out := reflect.MakeSlice(typ, len(arr), len(arr))
		for i, el := range arr {
			if err := c.decodeValue(el, out.Index(i), o); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		rv.Set(out)
	case reflect.Array:
		arr, ok := v.(cjson.Array)
		if !ok {
			return mismatch()
		}
		if len(arr) > rv.Len() {
			return fmt.Errorf("%d elements do not fit into %v: %w", len(arr), typ, ErrTypeMismatch)
		}
		rv.SetZero()
		for i, el := range arr {
			if err := c.decodeValue(el, rv.Index(i), o); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	case reflect.Map:
		obj, ok := v.(cjson.Object)
		if !ok || typ.Key().Kind() != reflect.String {
			return mismatch()
		}
		out := reflect.MakeMapWithSize(typ, len(obj))
		for _, f := range obj {
			ev := reflect.New(typ.Elem()).Elem()
			if err := c.decodeValue(f.Value, ev, o); err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
			out.SetMapIndex(reflect.ValueOf(f.Name).Convert(typ.Key()), ev)
		}
		rv.Set(out)
	case reflect.Struct:
		obj, ok := v.(cjson.Object)
		if !ok {
			return mismatch()
		}
		rv.SetZero()
		return c.decodeItem(obj, rv)
	case reflect.Pointer:
		p := reflect.New(typ.Elem())
		if err := c.decodeValue(v, p.Elem(), o); err != nil {
			return err
		}
		rv.Set(p)
	case reflect.Interface:
		if typ.NumMethod() != 0 {
			return mismatch()
		}
		if n := nativeValue(v); n != nil {
			rv.Set(reflect.ValueOf(n))
		} else {
			rv.SetZero()
		}
	default:
		return mismatch()
	}
	return nil
}

func integral(v cjson.Value) (int64, bool) {
	switch v := v.(type) {
	case cjson.Int:
		return int64(v), true
	case cjson.Double:
		f := float64(v)
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}

// nativeValue converts a value tree into plain Go values, the way
// encoding/json would decode it into an interface.
func nativeValue(v cjson.Value) any {
	switch v := v.(type) {
	case nil, cjson.Null:
		return nil
	case cjson.Bool:
		return bool(v)
	case cjson.Int:
		return int64(v)
	case cjson.Double:
		return float64(v)
	case cjson.String:
		return string(v)
	case cjson.UUID:
		return v.String()
	case cjson.Array:
		result := make([]any, len(v))
		for i, el := range v {
			result[i] = nativeValue(el)
		}
		return result
	case cjson.Object:
		result := make(map[string]any, len(v))
		for _, f := range v {
			result[f.Name] = nativeValue(f.Value)
		}
		return result
	default:
		panic(fmt.Errorf("rxdb: unexpected value %T", v))
	}
}

// treeValue is the inverse of nativeValue for values produced by the JSON
// and msgpack decoders. Map keys are sorted.
func treeValue(v any) (cjson.Value, error) {
	switch v := v.(type) {
	case nil:
		return cjson.Null{}, nil
	case bool:
		return cjson.Bool(v), nil
	case int8:
		return cjson.Int(v), nil
	case int16:
		return cjson.Int(v), nil
	case int32:
		return cjson.Int(v), nil
	case int64:
		return cjson.Int(v), nil
	case int:
		return cjson.Int(v), nil
	case uint8:
		return cjson.Int(v), nil
	case uint16:
		return cjson.Int(v), nil
	case uint32:
		return cjson.Int(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows int64: %w", v, cjson.ErrUnsupportedType)
		}
		return cjson.Int(v), nil
	case float32:
		return cjson.Double(v), nil
	case float64:
		return cjson.Double(v), nil
	case json.Number:
		if n, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			return cjson.Int(n), nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return cjson.Double(f), nil
	case string:
		return cjson.String(v), nil
	case []byte:
		return cjson.String(v), nil
	case []any:
		arr := make(cjson.Array, 0, len(v))
		for _, el := range v {
			tv, err := treeValue(el)
			if err != nil {
				return nil, err
			}
			arr = append(arr, tv)
		}
		return arr, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		obj := make(cjson.Object, 0, len(v))
		for _, k := range keys {
			tv, err := treeValue(v[k])
			if err != nil {
				return nil, err
			}
			obj = append(obj, cjson.Field{Name: k, Value: tv})
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("%T: %w", v, cjson.ErrUnsupportedType)
	}
}
