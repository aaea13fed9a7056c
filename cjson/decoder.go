package cjson

import (
	"github.com/andreyvit/rxdb/cproto"
)

// Decode parses an item produced by Encode (or sent by the server) into a
// value tree, resolving tags through pt and through the item's own tags
// header, if present.
func Decode(pt *PayloadType, data []byte) (Object, error) {
	d := decoder{pt: pt, data: data}
	body, err := d.splitTagsHeader()
	if err != nil {
		return nil, err
	}

	r := cproto.NewReader(body)
	c, err := d.ctag(r)
	if err != nil {
		return nil, err
	}
	if c.Type() != TagObject {
		return nil, cproto.DataErrf(body, 0, nil, "item must start with an object, got %s", tagTypeName(c.Type()))
	}
	v, err := d.value(r, c)
	if err != nil {
		return nil, err
	}
	if !r.Done() {
		return nil, cproto.DataErrf(body, r.Off(), nil, "%d bytes of trailing data after item", r.Remaining())
	}
	return v.(Object), nil
}

// ItemTags returns the names an item carries in its tags header along with
// the tag number preceding the first of them. It returns (0, nil, nil) for an
// item without a header.
func ItemTags(data []byte) (base int, names []string, err error) {
	d := decoder{data: data}
	if _, err := d.splitTagsHeader(); err != nil {
		return 0, nil, err
	}
	return d.base, d.extra, nil
}

type decoder struct {
	pt    *PayloadType
	data  []byte
	base  int
	extra []string
}

func (d *decoder) splitTagsHeader() ([]byte, error) {
	r := cproto.NewReader(d.data)
	c, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if ctag(c) != mkctag(TagEnd, 0) {
		return d.data, nil
	}
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	body, err := r.Raw(int(n))
	if err != nil {
		return nil, err
	}
	if d.base, err = r.Uvarinti(); err != nil {
		return nil, err
	}
	count, err := r.Uvarinti()
	if err != nil {
		return nil, err
	}
	if count > tagNameMask {
		return nil, cproto.DataErrf(d.data, r.Off(), nil, "too many tags in item header: %d", count)
	}
	d.extra = make([]string, 0, count)
	for range count {
		name, err := r.VString()
		if err != nil {
			return nil, err
		}
		d.extra = append(d.extra, name)
	}
	if !r.Done() {
		return nil, cproto.DataErrf(d.data, r.Off(), nil, "trailing data after tags header")
	}
	return body, nil
}

func (d *decoder) tagName(tag int) (string, error) {
	tag &= tagNameMask
	if d.extra != nil && tag > d.base && tag <= d.base+len(d.extra) {
		return d.extra[tag-d.base-1], nil
	}
	return d.pt.TagToName(tag)
}

func (d *decoder) ctag(r *cproto.Buffer) (ctag, error) {
	v, err := r.Uvarint()
	return ctag(v), err
}

func (d *decoder) value(r *cproto.Buffer, c ctag) (Value, error) {
	switch typ := c.Type(); typ {
	case TagObject:
		var obj Object
		for {
			fc, err := d.ctag(r)
			if err != nil {
				return nil, err
			}
			if fc.Type() == TagEnd {
				if obj == nil {
					obj = Object{}
				}
				return obj, nil
			}
			name, err := d.tagName(fc.Name())
			if err != nil {
				return nil, err
			}
			v, err := d.value(r, fc)
			if err != nil {
				return nil, err
			}
			obj = append(obj, Field{name, v})
		}
	case TagArray:
		at, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		n, elemType := carraytagCount(at), carraytagType(at)
		if n > r.Remaining() && elemType != TagNull {
			return nil, cproto.DataErrf(r.Bytes(), r.Off(), cproto.ErrTruncatedData, "array of %d elements in %d bytes", n, r.Remaining())
		}
		arr := make(Array, 0, n)
		for range n {
			var v Value
			if elemType == TagObject {
				ec, err := d.ctag(r)
				if err != nil {
					return nil, err
				}
				v, err = d.value(r, ec)
				if err != nil {
					return nil, err
				}
			} else {
				v, err = d.scalar(r, elemType)
				if err != nil {
					return nil, err
				}
			}
			arr = append(arr, v)
		}
		return arr, nil
	case TagEnd:
		return nil, cproto.DataErrf(r.Bytes(), r.Off(), nil, "unexpected end tag")
	default:
		return d.scalar(r, typ)
	}
}

func (d *decoder) scalar(r *cproto.Buffer, typ int) (Value, error) {
	switch typ {
	case TagNull:
		return Null{}, nil
	case TagBool:
		v, err := r.Bool()
		return Bool(v), err
	case TagVarint:
		v, err := r.Svarint()
		return Int(v), err
	case TagDouble:
		v, err := r.Double()
		return Double(v), err
	case TagFloat:
		v, err := r.Float()
		return Double(v), err
	case TagString:
		v, err := r.VString()
		return String(v), err
	case TagUUID:
		raw, err := r.Raw(16)
		if err != nil {
			return nil, err
		}
		var u UUID
		copy(u[:], raw)
		return u, nil
	default:
		return nil, cproto.DataErrf(r.Bytes(), r.Off(), nil, "unknown tag type %d", typ)
	}
}
