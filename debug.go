package rxdb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/andreyvit/rxdb/cproto"
	"github.com/google/uuid"
)

var (
	opNames       = map[uint64]string{cproto.OpOr: "OR", cproto.OpAnd: "AND", cproto.OpNot: "NOT"}
	joinKindNames = map[uint64]string{cproto.LeftJoin: "LEFT", cproto.InnerJoin: "INNER", cproto.OrInnerJoin: "OR INNER", cproto.Merge: "MERGE"}
	knnTypeNames  = map[uint64]string{cproto.KnnQueryTypeBase: "base", cproto.KnnQueryTypeBruteForce: "bf", cproto.KnnQueryTypeHnsw: "hnsw", cproto.KnnQueryTypeIvf: "ivf"}
)

// DescribeQuery renders a compiled query stream as text, for logs and tests:
//
//	items WHERE AND id EQ 77 LIMIT 10 END | INNER JOIN users ON AND uid EQ id END
//
// Both finalized select streams and the unterminated streams of update and
// delete queries are accepted.
func DescribeQuery(data []byte) (string, error) {
	d := &queryDescriber{r: cproto.NewReader(data)}
	d.query()
	for d.err == nil && !d.r.Done() {
		kind := d.uvarint()
		d.printf(" | %s JOIN ", codeName(joinKindNames, kind))
		d.query()
	}
	return d.w.String(), d.err
}

type queryDescriber struct {
	r   *cproto.Buffer
	w   strings.Builder
	err error
}

func (d *queryDescriber) printf(format string, args ...any) {
	fmt.Fprintf(&d.w, format, args...)
}

func (d *queryDescriber) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, err := d.r.Uvarint()
	d.err = err
	return v
}

func (d *queryDescriber) str() string {
	if d.err != nil {
		return ""
	}
	v, err := d.r.VString()
	d.err = err
	return v
}

func (d *queryDescriber) query() {
	d.w.WriteString(d.str())
	for d.err == nil && !d.r.Done() {
		off := d.r.Off()
		switch code := d.uvarint(); code {
		case cproto.QueryEnd:
			d.w.WriteString(" END")
			return
		case cproto.QueryCondition:
			field, op, cond := d.str(), d.uvarint(), Condition(d.uvarint())
			d.printf(" WHERE %s %s %v", codeName(opNames, op), field, cond)
			d.values(d.uvarint())
		case cproto.QueryKnnCondition:
			field, op := d.str(), d.uvarint()
			d.printf(" WHERE %s KNN(%s, [", codeName(opNames, op), field)
			n := d.uvarint()
			for i := range n {
				if d.err != nil {
					break
				}
				v, err := d.r.Float()
				d.err = err
				if i > 0 {
					d.w.WriteByte(' ')
				}
				d.w.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
			}
			d.printf("], ")
			d.knnParams()
			d.w.WriteByte(')')
		case cproto.QuerySortIndex:
			field, desc := d.str(), d.uvarint()
			d.printf(" SORT %s", field)
			if desc != 0 {
				d.w.WriteString(" DESC")
			}
			d.values(d.uvarint())
		case cproto.QueryJoinOn:
			op, cond, field, joinField := d.uvarint(), Condition(d.uvarint()), d.str(), d.str()
			d.printf(" ON %s %s %v %s", codeName(opNames, op), field, cond, joinField)
		case cproto.QueryJoinCondition:
			kind, idx := d.uvarint(), d.uvarint()
			d.printf(" WHERE %s JOINED #%d", codeName(joinKindNames, kind), idx)
		case cproto.QueryLimit:
			d.printf(" LIMIT %d", d.uvarint())
		case cproto.QueryOffset:
			d.printf(" OFFSET %d", d.uvarint())
		case cproto.QueryReqTotal:
			d.printf(" REQTOTAL(%d)", d.uvarint())
		case cproto.QueryUpdateField:
			d.printf(" SET %s =", d.str())
			d.updateValues(d.uvarint())
		case cproto.QueryUpdateFieldV2:
			field, isArray := d.str(), d.uvarint()
			d.printf(" SET %s =", field)
			if isArray != 0 {
				d.w.WriteString(" []")
			}
			d.updateValues(d.uvarint())
		case cproto.QueryDropField:
			d.printf(" DROP %s", d.str())
		default:
			if d.err == nil {
				d.err = cproto.DataErrf(d.r.Bytes(), off, nil, "unknown query opcode %d", code)
			}
		}
	}
}

func (d *queryDescriber) updateValues(n uint64) {
	for i := uint64(0); i < n && d.err == nil; i++ {
		if d.uvarint() != 0 {
			d.w.WriteString(" expr")
		}
		d.w.WriteByte(' ')
		d.value()
	}
}

func (d *queryDescriber) values(n uint64) {
	if n == 0 {
		return
	}
	d.w.WriteByte(' ')
	if n == 1 {
		d.value()
	} else {
		d.list(n)
	}
}

func (d *queryDescriber) list(n uint64) {
	d.w.WriteByte('(')
	for i := uint64(0); i < n && d.err == nil; i++ {
		if i > 0 {
			d.w.WriteString(", ")
		}
		d.value()
	}
	d.w.WriteByte(')')
}

func (d *queryDescriber) value() {
	off := d.r.Off()
	kind := d.uvarint()
	if d.err != nil {
		return
	}
	switch kind {
	case cproto.ValueNull:
		d.w.WriteString("null")
	case cproto.ValueBool:
		d.w.WriteString(strconv.FormatBool(d.uvarint() != 0))
	case cproto.ValueInt, cproto.ValueInt64:
		v, err := d.r.Svarint()
		d.err = err
		d.w.WriteString(strconv.FormatInt(v, 10))
	case cproto.ValueDouble:
		v, err := d.r.Double()
		d.err = err
		d.w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	case cproto.ValueFloat:
		v, err := d.r.Float()
		d.err = err
		d.w.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	case cproto.ValueString:
		d.w.WriteString(strconv.Quote(d.str()))
	case cproto.ValueUUID:
		raw, err := d.r.Raw(16)
		if d.err = err; err == nil {
			d.printf("u%q", uuid.UUID(raw).String())
		}
	case cproto.ValueTuple:
		d.list(d.uvarint())
	default:
		d.err = cproto.DataErrf(d.r.Bytes(), off, nil, "unknown value kind %d", kind)
	}
}

func (d *queryDescriber) knnParams() {
	typ, _ := d.uvarint(), d.uvarint()
	flags := d.uvarint()
	d.w.WriteString(codeName(knnTypeNames, typ))
	if flags&cproto.KnnSerializeWithK != 0 {
		d.printf(" k=%d", d.uvarint())
	}
	if flags&cproto.KnnSerializeWithRadius != 0 && d.err == nil {
		v, err := d.r.Float()
		d.err = err
		d.printf(" radius=%g", v)
	}
	switch typ {
	case cproto.KnnQueryTypeHnsw:
		d.printf(" ef=%d", d.uvarint())
	case cproto.KnnQueryTypeIvf:
		d.printf(" nprobe=%d", d.uvarint())
	}
}

func codeName(names map[uint64]string, v uint64) string {
	if s, ok := names[v]; ok {
		return s
	}
	return fmt.Sprintf("#%d", v)
}
