package binding

import (
	"github.com/andreyvit/rxdb/cjson"
	"github.com/andreyvit/rxdb/cproto"
)

// Reply envelope layout:
//
//	uvarint flags       format | withPayloadTypes<<4
//	uvarint handle
//	uvarint total
//	uvarint count
//	[uvarint nPT, PayloadType × nPT]   if withPayloadTypes
//	vstring item × count
const (
	resultFormatMask         = 0xF
	resultWithPayloadTypes   = 1 << 4
	resultKnownFlags         = resultFormatMask | resultWithPayloadTypes
	maxPayloadTypesPerResult = 1024
)

// AppendQueryResult encodes r in the reply envelope format.
func AppendQueryResult(b *cproto.Buffer, r *QueryResult) {
	flags := uint64(r.Format & resultFormatMask)
	if len(r.PayloadTypes) > 0 {
		flags |= resultWithPayloadTypes
	}
	b.PutUvarint(flags)
	b.PutUvarint(uint64(r.Handle))
	b.PutUvarint(uint64(r.TotalCount))
	b.PutUvarint(uint64(len(r.Items)))
	if len(r.PayloadTypes) > 0 {
		b.PutUvarint(uint64(len(r.PayloadTypes)))
		for _, pt := range r.PayloadTypes {
			AppendPayloadType(b, pt)
		}
	}
	for _, item := range r.Items {
		b.PutVBytes(item)
	}
}

// ParseQueryResult decodes a reply envelope. Items alias data.
func ParseQueryResult(data []byte) (*QueryResult, error) {
	r := cproto.NewReader(data)
	flags, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if flags&^resultKnownFlags != 0 {
		return nil, cproto.DataErrf(data, 0, nil, "unknown result flags 0x%x", flags)
	}

	res := &QueryResult{Format: int(flags & resultFormatMask)}
	handle, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	res.Handle = int64(handle)
	if res.TotalCount, err = r.Uvarinti(); err != nil {
		return nil, err
	}
	if res.Count, err = r.Uvarinti(); err != nil {
		return nil, err
	}
	if res.Count > r.Remaining() {
		return nil, cproto.DataErrf(data, r.Off(), cproto.ErrTruncatedData, "%d items cannot fit into %d bytes", res.Count, r.Remaining())
	}

	if flags&resultWithPayloadTypes != 0 {
		n, err := r.Uvarinti()
		if err != nil {
			return nil, err
		}
		if n > maxPayloadTypesPerResult {
			return nil, cproto.DataErrf(data, r.Off(), nil, "too many payload types: %d", n)
		}
		res.PayloadTypes = make([]*cjson.PayloadType, 0, n)
		for range n {
			pt, err := ReadPayloadType(r)
			if err != nil {
				return nil, err
			}
			res.PayloadTypes = append(res.PayloadTypes, pt)
		}
	}

	res.Items = make([][]byte, 0, res.Count)
	for range res.Count {
		item, err := r.VBytes()
		if err != nil {
			return nil, err
		}
		res.Items = append(res.Items, item)
	}
	if !r.Done() {
		return nil, cproto.DataErrf(data, r.Off(), nil, "trailing data after query result")
	}
	return res, nil
}

// AppendPayloadType writes pt in the wire form used inside reply envelopes.
func AppendPayloadType(b *cproto.Buffer, pt *cjson.PayloadType) {
	b.PutUvarint(uint64(pt.NamespaceID))
	b.PutVString(pt.NamespaceName)
	b.PutSvarint(pt.StateToken)
	b.PutUvarint(uint64(pt.Version))
	b.PutUvarint(uint64(pt.PStringHdrOffset))
	b.PutUvarint(uint64(len(pt.Tags)))
	for _, tag := range pt.Tags {
		b.PutVString(tag)
	}
	b.PutUvarint(uint64(len(pt.Fields)))
	for _, f := range pt.Fields {
		b.PutUvarint(uint64(f.Type))
		b.PutVString(f.Name)
		b.PutUvarint(uint64(f.Offset))
		b.PutUvarint(uint64(f.Size))
		b.PutBool(f.IsArray)
		b.PutUvarint(uint64(len(f.JSONPaths)))
		for _, p := range f.JSONPaths {
			b.PutVString(p)
		}
	}
}

// ReadPayloadType is the inverse of AppendPayloadType.
func ReadPayloadType(r *cproto.Buffer) (*cjson.PayloadType, error) {
	start := r.Off()
	var pt cjson.PayloadType
	var err error
	if pt.NamespaceID, err = readInt64(r); err != nil {
		return nil, err
	}
	if pt.NamespaceName, err = r.VString(); err != nil {
		return nil, err
	}
	if pt.StateToken, err = r.Svarint(); err != nil {
		return nil, err
	}
	if pt.Version, err = readInt64(r); err != nil {
		return nil, err
	}
	if pt.PStringHdrOffset, err = readInt64(r); err != nil {
		return nil, err
	}
	if pt.Tags, err = readStrings(r); err != nil {
		return nil, err
	}
	nf, err := r.Uvarinti()
	if err != nil {
		return nil, err
	}
	if nf > r.Remaining() {
		return nil, cproto.DataErrf(r.Bytes(), r.Off(), cproto.ErrTruncatedData, "%d payload fields cannot fit into %d bytes", nf, r.Remaining())
	}
	for range nf {
		var f cjson.PayloadField
		if f.Type, err = readInt64(r); err != nil {
			return nil, err
		}
		if f.Name, err = r.VString(); err != nil {
			return nil, err
		}
		if f.Offset, err = readInt64(r); err != nil {
			return nil, err
		}
		if f.Size, err = readInt64(r); err != nil {
			return nil, err
		}
		if f.IsArray, err = r.Bool(); err != nil {
			return nil, err
		}
		if f.JSONPaths, err = readStrings(r); err != nil {
			return nil, err
		}
		pt.Fields = append(pt.Fields, f)
	}

	seen := make(map[string]bool, len(pt.Tags))
	for _, tag := range pt.Tags {
		if seen[tag] {
			return nil, cproto.DataErrf(r.Bytes(), start, nil, "duplicate tag %q in payload type of %s", tag, pt.NamespaceName)
		}
		seen[tag] = true
	}
	return pt.Init(), nil
}

func readInt64(r *cproto.Buffer) (int64, error) {
	v, err := r.Uvarinti()
	return int64(v), err
}

func readStrings(r *cproto.Buffer) ([]string, error) {
	n, err := r.Uvarinti()
	if err != nil {
		return nil, err
	}
	if n > r.Remaining() {
		return nil, cproto.DataErrf(r.Bytes(), r.Off(), cproto.ErrTruncatedData, "%d strings cannot fit into %d bytes", n, r.Remaining())
	}
	var result []string
	for range n {
		s, err := r.VString()
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}
