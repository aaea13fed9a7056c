package rxdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/andreyvit/rxdb/cjson"
	"github.com/andreyvit/rxdb/cproto"
	"github.com/vmihailenco/msgpack/v5"
)

// decodeTree parses one result item in the given format into a value tree.
// JSON and msgpack items carry names instead of tags and ignore pt.
func decodeTree(format int, pt *cjson.PayloadType, data []byte) (cjson.Object, error) {
	var raw any
	switch format {
	case cproto.FormatCJSON:
		return cjson.Decode(pt, data)
	case cproto.FormatMsgPack:
		var r bytes.Reader
		r.Reset(data)
		dec := msgpack.GetDecoder()
		dec.Reset(&r)
		v, err := dec.DecodeInterface()
		msgpack.PutDecoder(dec)
		if err != nil {
			return nil, cproto.DataErrf(data, 0, err, "failed to decode msgpack item")
		}
		raw = v
	case cproto.FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, cproto.DataErrf(data, 0, err, "failed to decode JSON item")
		}
	default:
		return nil, fmt.Errorf("format %d: %w", format, ErrUnsupportedFormat)
	}

	tree, err := treeValue(raw)
	if err != nil {
		return nil, cproto.DataErrf(data, 0, err, "unsupported value in item")
	}
	obj, ok := tree.(cjson.Object)
	if !ok {
		return nil, cproto.DataErrf(data, 0, nil, "item is %s, not an object", tree.Kind())
	}
	return obj, nil
}

func (c itemCodec) decodeResultItem(format int, pt *cjson.PayloadType, data []byte, ptr reflect.Value) error {
	obj, err := decodeTree(format, pt, data)
	if err != nil {
		return err
	}
	return c.decodeItem(obj, ptr.Elem())
}
