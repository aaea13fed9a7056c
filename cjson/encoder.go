package cjson

import (
	"fmt"

	"github.com/andreyvit/rxdb/cproto"
)

// Encode serializes an item. Field names are mapped to tags through m. If m
// had to allocate tags, the result is framed with a tags header:
//
//	uvarint(End ctag) uint32(body length) body uvarint(base) uvarint(n) vstring×n
//
// where the n names are those of tags base+1..base+n.
func Encode(obj Object, m *TagMatcher) ([]byte, error) {
	body := cproto.NewBuffer()
	if err := writeValue(body, 0, obj, m); err != nil {
		return nil, err
	}
	if !m.Updated() {
		return body.Bytes(), nil
	}

	out := cproto.NewBuffer()
	out.Grow(body.Len() + 16)
	out.Trim(0)
	out.PutUvarint(uint64(mkctag(TagEnd, 0)))
	out.PutUint32(uint32(body.Len()))
	out.PutRaw(body.Bytes())
	out.PutUvarint(uint64(m.Base()))
	out.PutUvarint(uint64(len(m.NewTags())))
	for _, name := range m.NewTags() {
		out.PutVString(name)
	}
	return out.Bytes(), nil
}

func writeValue(w *cproto.Buffer, name int, v Value, m *TagMatcher) error {
	switch v := v.(type) {
	case nil:
		w.PutUvarint(uint64(mkctag(TagNull, name)))
	case Object:
		w.PutUvarint(uint64(mkctag(TagObject, name)))
		for _, f := range v {
			tag, err := m.Tag(f.Name)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
			if err := writeValue(w, tag, f.Value, m); err != nil {
				return err
			}
		}
		w.PutUvarint(uint64(mkctag(TagEnd, 0)))
	case Array:
		if len(v) > maxArrayLen {
			return fmt.Errorf("array of %d elements exceeds %d: %w", len(v), maxArrayLen, ErrUnsupportedType)
		}
		w.PutUvarint(uint64(mkctag(TagArray, name)))
		elemType := homogeneousTagType(v)
		w.PutUint32(mkcarraytag(len(v), elemType))
		for _, el := range v {
			if elemType == TagObject {
				if err := writeValue(w, 0, el, m); err != nil {
					return err
				}
			} else {
				writeScalarBody(w, el)
			}
		}
	default:
		w.PutUvarint(uint64(mkctag(scalarTagType(v), name)))
		writeScalarBody(w, v)
	}
	return nil
}

func scalarTagType(v Value) int {
	switch v.(type) {
	case nil, Null:
		return TagNull
	case Bool:
		return TagBool
	case Int:
		return TagVarint
	case Double:
		return TagDouble
	case String:
		return TagString
	case UUID:
		return TagUUID
	case Array:
		return TagArray
	case Object:
		return TagObject
	default:
		panic(unexpectedValue(v))
	}
}

func writeScalarBody(w *cproto.Buffer, v Value) {
	switch v := v.(type) {
	case nil, Null:
	case Bool:
		w.PutBool(bool(v))
	case Int:
		w.PutSvarint(int64(v))
	case Double:
		w.PutDouble(float64(v))
	case String:
		w.PutVString(string(v))
	case UUID:
		w.PutRaw(v[:])
	default:
		panic(unexpectedValue(v))
	}
}

// homogeneousTagType returns the common scalar tag type of all elements, or
// TagObject when elements differ or are containers (each element then carries
// its own ctag).
func homogeneousTagType(arr Array) int {
	if len(arr) == 0 {
		return TagObject
	}
	typ := scalarTagType(arr[0])
	if typ == TagArray || typ == TagObject {
		return TagObject
	}
	for _, el := range arr[1:] {
		if scalarTagType(el) != typ {
			return TagObject
		}
	}
	return typ
}
