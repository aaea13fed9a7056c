package rxdb

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FieldModelProvider describes how record types map onto items.
type FieldModelProvider interface {
	FieldsOf(typ reflect.Type) (*FieldModel, error)
}

// FieldModel is the ordered list of fields of a struct type.
type FieldModel struct {
	Type   reflect.Type
	Fields []*Field

	byWireName map[string]*Field
}

// Field describes one struct field.
type Field struct {
	Name      string
	WireName  string
	Index     []int
	Type      reflect.Type
	Kind      reflect.Kind
	Transient bool

	// UUID marks a string field (or a slice of strings) carried as the UUID
	// wire kind.
	UUID bool

	// EnumAsString emits the symbolic name of an Enum instead of its ordinal.
	EnumAsString bool
}

// Enum is implemented by integer types with symbolic names. EnumNames
// returns the names indexed by ordinal.
type Enum interface {
	EnumNames() []string
}

// ByWireName returns the non-transient field carried under name, or nil.
func (m *FieldModel) ByWireName(name string) *Field {
	return m.byWireName[name]
}

func NewFieldModel(typ reflect.Type, fields []*Field) *FieldModel {
	m := &FieldModel{
		Type:       typ,
		Fields:     fields,
		byWireName: make(map[string]*Field, len(fields)),
	}
	for _, f := range fields {
		if !f.Transient {
			m.byWireName[f.WireName] = f
		}
	}
	return m
}

var (
	enumType = reflect.TypeFor[Enum]()
	uuidType = reflect.TypeFor[uuid.UUID]()
)

// ReflectFieldModels builds field models from struct tags:
//
//	`json:"name"`        wire name (json:"-" makes the field transient)
//	`rx:"-"`             transient
//	`rx:"uuid"`          string carried as the UUID wire kind
//	`rx:"enum=string"`   Enum carried by name instead of ordinal
//
// Models are computed once per type and cached.
type ReflectFieldModels struct{}

var fieldModelCache sync.Map

func (ReflectFieldModels) FieldsOf(typ reflect.Type) (*FieldModel, error) {
	if v, ok := fieldModelCache.Load(typ); ok {
		return v.(*FieldModel), nil
	}
	m, err := reflectFieldModel(typ)
	if err != nil {
		return nil, err
	}
	actual, _ := fieldModelCache.LoadOrStore(typ, m)
	return actual.(*FieldModel), nil
}

func reflectFieldModel(typ reflect.Type) (*FieldModel, error) {
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%v is not a struct", typ)
	}
	var all []fieldAt
	err := collectFields(typ, typ, nil, 0, map[reflect.Type]bool{typ: true}, &all)
	if err != nil {
		return nil, err
	}

	// Shallower fields shadow promoted ones, like Go selectors do.
	shallowest := make(map[string]fieldAt)
	for _, fa := range all {
		if fa.Transient {
			continue
		}
		prev, dup := shallowest[fa.WireName]
		switch {
		case !dup || fa.depth < prev.depth:
			shallowest[fa.WireName] = fa
		case fa.depth == prev.depth:
			return nil, fmt.Errorf("%v: fields %s and %s share wire name %q", typ, prev.Name, fa.Name, fa.WireName)
		}
	}
	fields := make([]*Field, 0, len(all))
	for _, fa := range all {
		if fa.Transient || shallowest[fa.WireName].Field == fa.Field {
			fields = append(fields, fa.Field)
		}
	}
	return NewFieldModel(typ, fields), nil
}

type fieldAt struct {
	*Field
	depth int
}

// collectFields appends the fields of typ, flattening untagged embedded
// structs. index is the path from the root type to typ.
func collectFields(root, typ reflect.Type, index []int, depth int, visiting map[reflect.Type]bool, out *[]fieldAt) error {
	for i := range typ.NumField() {
		sf := typ.Field(i)
		path := append(slices.Clip(index), i)

		jsonName, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		rxTag := sf.Tag.Get("rx")
		if sf.Anonymous && jsonName == "" && rxTag != "-" {
			et, ptr := sf.Type, false
			if et.Kind() == reflect.Pointer {
				et, ptr = et.Elem(), true
			}
			if et.Kind() == reflect.Struct {
				// an unexported embedded pointer cannot be allocated on decode
				if (ptr && !sf.IsExported()) || visiting[et] {
					continue
				}
				visiting[et] = true
				err := collectFields(root, et, path, depth+1, visiting, out)
				delete(visiting, et)
				if err != nil {
					return err
				}
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}

		f := &Field{
			Name:     sf.Name,
			WireName: sf.Name,
			Index:    path,
			Type:     sf.Type,
			Kind:     sf.Type.Kind(),
		}
		if jsonName == "-" {
			f.Transient = true
		} else if jsonName != "" {
			f.WireName = jsonName
		}
		for _, opt := range strings.Split(rxTag, ",") {
			switch opt {
			case "":
			case "-":
				f.Transient = true
			case "uuid":
				if baseType(sf.Type).Kind() != reflect.String {
					return fmt.Errorf("%v.%s: rx:\"uuid\" requires a string field, got %v", root, sf.Name, sf.Type)
				}
				f.UUID = true
			case "enum=string":
				if !baseType(sf.Type).Implements(enumType) {
					return fmt.Errorf("%v.%s: rx:\"enum=string\" requires a type implementing Enum, got %v", root, sf.Name, sf.Type)
				}
				f.EnumAsString = true
			case "enum=ordinal":
			default:
				return fmt.Errorf("%v.%s: unknown rx option %q", root, sf.Name, opt)
			}
		}
		*out = append(*out, fieldAt{f, depth})
	}
	return nil
}

// fieldForSet returns the field at index, allocating nil embedded pointers
// on the way.
func fieldForSet(rv reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				rv.Set(reflect.New(rv.Type().Elem()))
			}
			rv = rv.Elem()
		}
		rv = rv.Field(x)
	}
	return rv
}

// baseType strips pointers, slices and arrays.
func baseType(typ reflect.Type) reflect.Type {
	for {
		switch typ.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array:
			typ = typ.Elem()
		default:
			return typ
		}
	}
}

// enumNames returns the names of an integer Enum type, or nil for any other
// type.
func enumNames(typ reflect.Type) []string {
	if (!isIntKind(typ.Kind()) && !isUintKind(typ.Kind())) || !typ.Implements(enumType) {
		return nil
	}
	return reflect.Zero(typ).Interface().(Enum).EnumNames()
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	default:
		return false
	}
}

func isUintKind(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	default:
		return false
	}
}
