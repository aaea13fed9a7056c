package cjson

import (
	"strconv"
	"strings"
)

// Dump renders v as a compact JSON-like string for logs and test failures.
// UUIDs are shown as u"..." to distinguish them from strings.
func Dump(v Value) string {
	var buf strings.Builder
	dump(&buf, v)
	return buf.String()
}

func dump(w *strings.Builder, v Value) {
	switch v := v.(type) {
	case nil:
		w.WriteString("<nil>")
	case Null:
		w.WriteString("null")
	case Bool:
		w.WriteString(strconv.FormatBool(bool(v)))
	case Int:
		w.WriteString(strconv.FormatInt(int64(v), 10))
	case Double:
		w.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 64))
	case String:
		w.WriteString(strconv.Quote(string(v)))
	case UUID:
		w.WriteString("u\"")
		w.WriteString(v.String())
		w.WriteByte('"')
	case Array:
		w.WriteByte('[')
		for i, el := range v {
			if i > 0 {
				w.WriteByte(',')
			}
			dump(w, el)
		}
		w.WriteByte(']')
	case Object:
		w.WriteByte('{')
		for i, f := range v {
			if i > 0 {
				w.WriteByte(',')
			}
			w.WriteString(f.Name)
			w.WriteByte(':')
			dump(w, f.Value)
		}
		w.WriteByte('}')
	default:
		panic(unexpectedValue(v))
	}
}
