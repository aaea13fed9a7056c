package rxdb

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"reflect"

	"github.com/andreyvit/rxdb/cjson"
	"github.com/andreyvit/rxdb/cproto"
	"github.com/google/uuid"
)

type Condition int

const (
	ANY    Condition = cproto.CondAny
	EQ     Condition = cproto.CondEq
	LT     Condition = cproto.CondLt
	LE     Condition = cproto.CondLe
	GT     Condition = cproto.CondGt
	GE     Condition = cproto.CondGe
	RANGE  Condition = cproto.CondRange
	SET    Condition = cproto.CondSet
	ALLSET Condition = cproto.CondAllSet
	EMPTY  Condition = cproto.CondEmpty
)

var conditionNames = [...]string{"ANY", "EQ", "LT", "LE", "GT", "GE", "RANGE", "SET", "ALLSET", "EMPTY"}

func (c Condition) String() string {
	if c >= 0 && int(c) < len(conditionNames) {
		return conditionNames[c]
	}
	return fmt.Sprintf("cond(%d)", int(c))
}

// Tuple is a composite value, matched against composite indexes.
type Tuple []any

// Joinable is a query that can be joined to another one. It is implemented by
// *Query[T] for any T.
type Joinable interface {
	builder() *queryBuilder
}

// queryBuilder is the untyped state of a query.
type queryBuilder struct {
	db         *DB
	ns         string
	buf        *cproto.Buffer
	nextOp     int
	joins      []joinEntry
	parent     *queryBuilder
	joinKind   int
	fetchCount int
	err        error
}

type joinEntry struct {
	q     *queryBuilder
	field string
}

func newQueryBuilder(db *DB, ns string) *queryBuilder {
	b := &queryBuilder{
		db:         db,
		ns:         ns,
		buf:        cproto.NewBuffer(),
		nextOp:     cproto.OpAnd,
		fetchCount: db.fetchCount,
	}
	b.buf.PutVString(ns)
	return b
}

func (b *queryBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// takeOp returns the pending operator and resets it to AND.
func (b *queryBuilder) takeOp() int {
	op := b.nextOp
	b.nextOp = cproto.OpAnd
	return op
}

// Query builds a command stream for namespace of T. Every builder method
// appends to the stream right away and returns the query itself. Build errors
// are kept and returned by the terminal methods (Exec and friends) before
// anything is sent.
//
// A Query is not safe for concurrent use.
type Query[T any] struct {
	ns *Namespace[T]
	b  *queryBuilder
}

func (q *Query[T]) builder() *queryBuilder {
	return q.b
}

// Err returns the first error recorded while building the query.
func (q *Query[T]) Err() error {
	return q.b.err
}

// Where appends a condition. A value that is a slice, an array or a Tuple is
// sent as a tuple (see WhereComposite).
func (q *Query[T]) Where(field string, cond Condition, values ...any) *Query[T] {
	b := q.b
	b.buf.PutUvarint(cproto.QueryCondition)
	b.buf.PutVString(field)
	b.buf.PutUvarint(uint64(b.takeOp()))
	b.buf.PutUvarint(uint64(cond))
	b.buf.PutUvarint(uint64(len(values)))
	for _, v := range values {
		if err := putValue(b.buf, v); err != nil {
			b.fail(fmt.Errorf("%s: %w", field, err))
		}
	}
	return q
}

func (q *Query[T]) WhereInt(field string, cond Condition, values ...int) *Query[T] {
	return q.Where(field, cond, anys(values)...)
}

func (q *Query[T]) WhereInt64(field string, cond Condition, values ...int64) *Query[T] {
	return q.Where(field, cond, anys(values)...)
}

func (q *Query[T]) WhereString(field string, cond Condition, values ...string) *Query[T] {
	return q.Where(field, cond, anys(values)...)
}

func (q *Query[T]) WhereBool(field string, cond Condition, value bool) *Query[T] {
	return q.Where(field, cond, value)
}

func (q *Query[T]) WhereUUID(field string, cond Condition, values ...uuid.UUID) *Query[T] {
	return q.Where(field, cond, anys(values)...)
}

// WhereComposite matches a composite index: values are sent as one tuple.
func (q *Query[T]) WhereComposite(field string, cond Condition, values ...any) *Query[T] {
	return q.Where(field, cond, Tuple(values))
}

// WhereKNN appends a vector similarity condition on a float vector field.
func (q *Query[T]) WhereKNN(field string, vec []float32, params KnnSearchParam) *Query[T] {
	b := q.b
	if params == nil {
		b.fail(fmt.Errorf("%s: no parameters: %w", field, ErrInvalidKnnParams))
		return q
	}
	if err := params.validate(); err != nil {
		b.fail(fmt.Errorf("%s: %w", field, err))
		return q
	}
	b.buf.PutUvarint(cproto.QueryKnnCondition)
	b.buf.PutVString(field)
	b.buf.PutUvarint(uint64(b.takeOp()))
	b.buf.PutUvarint(uint64(len(vec)))
	for _, f := range vec {
		b.buf.PutFloat(f)
	}
	params.appendKnn(b.buf)
	return q
}

// Or makes the next condition, join or join predicate OR-ed with the
// preceding ones.
func (q *Query[T]) Or() *Query[T] {
	q.b.nextOp = cproto.OpOr
	return q
}

// Not negates the next condition.
func (q *Query[T]) Not() *Query[T] {
	q.b.nextOp = cproto.OpNot
	return q
}

// Join attaches sub as an inner join on field. After Or the join becomes an
// OR-inner join.
func (q *Query[T]) Join(sub Joinable, field string) *Query[T] {
	if q.b.nextOp == cproto.OpOr {
		q.b.nextOp = cproto.OpAnd
		return q.join(sub, field, cproto.OrInnerJoin)
	}
	return q.join(sub, field, cproto.InnerJoin)
}

func (q *Query[T]) InnerJoin(sub Joinable, field string) *Query[T] {
	return q.Join(sub, field)
}

// LeftJoin attaches sub as a left join. Left joins add no condition to this
// query.
func (q *Query[T]) LeftJoin(sub Joinable, field string) *Query[T] {
	return q.join(sub, field, cproto.LeftJoin)
}

func (q *Query[T]) join(sub Joinable, field string, kind int) *Query[T] {
	b, j := q.b, sub.builder()
	if j.parent != nil || j == b {
		b.fail(fmt.Errorf("%s join on %s: %w", j.ns, field, ErrAlreadyJoined))
		return q
	}
	if kind != cproto.LeftJoin {
		b.buf.PutUvarint(cproto.QueryJoinCondition)
		b.buf.PutUvarint(uint64(kind))
		b.buf.PutUvarint(uint64(len(b.joins)))
	}
	j.parent = b
	j.joinKind = kind
	b.joins = append(b.joins, joinEntry{j, field})
	return q
}

// On adds a join predicate to the most recently attached join: field of this
// query compared with joinField of the joined one.
func (q *Query[T]) On(field string, cond Condition, joinField string) *Query[T] {
	b := q.b
	if len(b.joins) == 0 {
		b.fail(fmt.Errorf("%s: %w", field, ErrNoJoin))
		return q
	}
	j := b.joins[len(b.joins)-1].q
	j.buf.PutUvarint(cproto.QueryJoinOn)
	j.buf.PutUvarint(uint64(b.takeOp()))
	j.buf.PutUvarint(uint64(cond))
	j.buf.PutVString(field)
	j.buf.PutVString(joinField)
	return q
}

// Sort orders results by field. Items equal to one of values, if given, come
// first.
func (q *Query[T]) Sort(field string, desc bool, values ...any) *Query[T] {
	b := q.b
	b.buf.PutUvarint(cproto.QuerySortIndex)
	b.buf.PutVString(field)
	b.buf.PutBool(desc)
	b.buf.PutUvarint(uint64(len(values)))
	for _, v := range values {
		if err := putValue(b.buf, v); err != nil {
			b.fail(fmt.Errorf("sort %s: %w", field, err))
		}
	}
	return q
}

// Limit caps the number of results. n <= 0 means no limit.
func (q *Query[T]) Limit(n int) *Query[T] {
	if n > 0 {
		q.b.buf.PutUvarint(cproto.QueryLimit).PutUvarint(uint64(n))
	}
	return q
}

// Offset skips the first n results. n <= 0 means no offset.
func (q *Query[T]) Offset(n int) *Query[T] {
	if n > 0 {
		q.b.buf.PutUvarint(cproto.QueryOffset).PutUvarint(uint64(n))
	}
	return q
}

// ReqTotal asks the server for the exact total count of matching items,
// ignoring Limit and Offset.
func (q *Query[T]) ReqTotal() *Query[T] {
	q.b.buf.PutUvarint(cproto.QueryReqTotal).PutUvarint(cproto.TotalModeAccurate)
	return q
}

// FetchCount sets the page size. n <= 0 fetches everything at once.
func (q *Query[T]) FetchCount(n int) *Query[T] {
	q.b.fetchCount = n
	return q
}

// Set adds a field assignment to an update query. A slice or array of at
// most one element uses the compact single-value form.
func (q *Query[T]) Set(field string, value any) *Query[T] {
	b := q.b
	rv := reflect.ValueOf(value)
	isList := rv.IsValid() && isListValue(rv)

	if isList && rv.Len() <= 1 {
		b.buf.PutUvarint(cproto.QueryUpdateFieldV2)
		b.buf.PutVString(field)
		b.buf.PutBool(true)
	} else {
		b.buf.PutUvarint(cproto.QueryUpdateField)
		b.buf.PutVString(field)
	}

	var err error
	switch {
	case value == nil:
		b.buf.PutUvarint(0)
	case isList:
		b.buf.PutUvarint(uint64(rv.Len()))
		for i := range rv.Len() {
			b.buf.PutBool(false)
			if e := putValue(b.buf, rv.Index(i).Interface()); e != nil && err == nil {
				err = e
			}
		}
	default:
		b.buf.PutUvarint(1)
		b.buf.PutBool(false)
		err = putValue(b.buf, value)
	}
	if err != nil {
		b.fail(fmt.Errorf("set %s: %w", field, err))
	}
	return q
}

// Drop removes field from matching items in an update query.
func (q *Query[T]) Drop(field string) *Query[T] {
	q.b.buf.PutUvarint(cproto.QueryDropField).PutVString(field)
	return q
}

// Compile returns the finalized select stream: the query's own operations,
// an end marker, then for each join its kind, its stream and an end marker.
// The query itself is left unchanged.
func (q *Query[T]) Compile() ([]byte, error) {
	buf := acquireQueryBuffer()
	defer releaseQueryBuffer(buf)
	if err := q.b.finalize(buf); err != nil {
		return nil, err
	}
	return buf.Clone(), nil
}

func (b *queryBuilder) checkRoot() error {
	if b.err != nil {
		return b.err
	}
	if b.parent != nil {
		return fmt.Errorf("%s: %w", b.ns, ErrAlreadyJoined)
	}
	return nil
}

func (b *queryBuilder) finalize(out *cproto.Buffer) error {
	if err := b.checkRoot(); err != nil {
		return err
	}
	out.PutRaw(b.buf.Bytes())
	out.PutUvarint(cproto.QueryEnd)
	for _, j := range b.joins {
		if j.q.err != nil {
			return j.q.err
		}
		if len(j.q.joins) > 0 {
			return fmt.Errorf("%s: %w", j.q.ns, ErrNestedJoin)
		}
		out.PutUvarint(uint64(j.q.joinKind))
		out.PutRaw(j.q.buf.Bytes())
		out.PutUvarint(cproto.QueryEnd)
	}
	return nil
}

// Exec runs the query as a select. Errors are reported by the iterator.
func (q *Query[T]) Exec(ctx context.Context) *Iterator[T] {
	return q.exec(ctx, q.b.fetchCount)
}

func (q *Query[T]) exec(ctx context.Context, fetchCount int) *Iterator[T] {
	b, db := q.b, q.b.db

	buf := acquireQueryBuffer()
	defer releaseQueryBuffer(buf)
	if err := b.finalize(buf); err != nil {
		return errIterator[T](nsErr(b.ns, "select", err))
	}
	db.logQuery(ctx, "select", b.ns, buf.Bytes())

	db.counters.selects.Add(1)
	res, err := db.binding.SelectQuery(ctx, buf.Bytes(), fetchCount, []int64{db.schemas.stateToken(b.ns)})
	if err != nil {
		db.handleStale(ctx, err)
		return errIterator[T](nsErr(b.ns, "select", err))
	}
	db.installPayloadTypes(ctx, res.PayloadTypes)
	return newIterator(ctx, q.ns, res, fetchCount)
}

// ExecToList runs the query and collects all results.
func (q *Query[T]) ExecToList(ctx context.Context) ([]*T, error) {
	return q.Exec(ctx).All()
}

// GetOne returns the only matching item. Fails with ErrNotFound or
// ErrMoreThanOne otherwise.
func (q *Query[T]) GetOne(ctx context.Context) (*T, error) {
	item, err := q.getOne(ctx)
	if err == nil && item == nil {
		err = nsErr(q.b.ns, "select", ErrNotFound)
	}
	return item, err
}

// FindOne is GetOne that returns nil instead of ErrNotFound.
func (q *Query[T]) FindOne(ctx context.Context) (*T, error) {
	return q.getOne(ctx)
}

func (q *Query[T]) getOne(ctx context.Context) (*T, error) {
	it := q.exec(ctx, 2)
	defer it.Close()
	var item *T
	if it.Next() {
		item = it.Object()
		if it.Next() {
			return nil, nsErr(q.b.ns, "select", ErrMoreThanOne)
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return item, nil
}

// Delete deletes matching items and returns their count.
func (q *Query[T]) Delete(ctx context.Context) (int, error) {
	b, db := q.b, q.b.db
	if err := b.checkRoot(); err != nil {
		return 0, nsErr(b.ns, "delete", err)
	}
	db.logQuery(ctx, "delete", b.ns, b.buf.Bytes())
	db.counters.deleteQueries.Add(1)
	n, err := db.binding.DeleteQuery(ctx, b.buf.Bytes())
	if err != nil {
		return 0, nsErr(b.ns, "delete", err)
	}
	return n, nil
}

// Update applies Set and Drop operations to matching items and returns their
// count.
func (q *Query[T]) Update(ctx context.Context) (int, error) {
	b, db := q.b, q.b.db
	if err := b.checkRoot(); err != nil {
		return 0, nsErr(b.ns, "update", err)
	}
	db.logQuery(ctx, "update", b.ns, b.buf.Bytes())
	db.counters.updateQueries.Add(1)
	n, err := db.binding.UpdateQuery(ctx, b.buf.Bytes())
	if err != nil {
		return 0, nsErr(b.ns, "update", err)
	}
	return n, nil
}

func (db *DB) logQuery(ctx context.Context, op, ns string, data []byte) {
	if !db.verbose {
		return
	}
	desc, err := DescribeQuery(data)
	if err != nil {
		desc = "** " + err.Error()
	}
	db.logger.LogAttrs(ctx, slog.LevelDebug, "rxdb: query", slog.String("op", op), slog.String("ns", ns), slog.String("query", desc), hexAttr("data", data))
}

// putValue appends a tagged query value.
func putValue(b *cproto.Buffer, v any) error {
	switch v := v.(type) {
	case nil:
		b.PutUvarint(cproto.ValueNull)
	case bool:
		b.PutUvarint(cproto.ValueBool).PutBool(v)
	case int:
		b.PutUvarint(cproto.ValueInt).PutSvarint(int64(v))
	case int8:
		b.PutUvarint(cproto.ValueInt).PutSvarint(int64(v))
	case int16:
		b.PutUvarint(cproto.ValueInt).PutSvarint(int64(v))
	case int32:
		b.PutUvarint(cproto.ValueInt).PutSvarint(int64(v))
	case uint8:
		b.PutUvarint(cproto.ValueInt).PutSvarint(int64(v))
	case uint16:
		b.PutUvarint(cproto.ValueInt).PutSvarint(int64(v))
	case int64:
		b.PutUvarint(cproto.ValueInt64).PutSvarint(v)
	case uint32:
		b.PutUvarint(cproto.ValueInt64).PutSvarint(int64(v))
	case float32:
		b.PutUvarint(cproto.ValueFloat).PutFloat(v)
	case float64:
		b.PutUvarint(cproto.ValueDouble).PutDouble(v)
	case string:
		b.PutUvarint(cproto.ValueString).PutVString(v)
	case []byte:
		b.PutUvarint(cproto.ValueString).PutVBytes(v)
	case uuid.UUID:
		b.PutUvarint(cproto.ValueUUID).PutRaw(v[:])
	default:
		return putReflectValue(b, reflect.ValueOf(v))
	}
	return nil
}

// putReflectValue handles named types, pointers and lists.
func putReflectValue(b *cproto.Buffer, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			b.PutUvarint(cproto.ValueNull)
			return nil
		}
		return putValue(b, rv.Elem().Interface())
	case reflect.Bool:
		b.PutUvarint(cproto.ValueBool).PutBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		b.PutUvarint(cproto.ValueInt).PutSvarint(rv.Int())
	case reflect.Int64:
		b.PutUvarint(cproto.ValueInt64).PutSvarint(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return fmt.Errorf("%d overflows int64: %w", u, cjson.ErrUnsupportedType)
		}
		b.PutUvarint(cproto.ValueInt64).PutSvarint(int64(u))
	case reflect.Float32, reflect.Float64:
		b.PutUvarint(cproto.ValueDouble).PutDouble(rv.Float())
	case reflect.String:
		b.PutUvarint(cproto.ValueString).PutVString(rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			b.PutUvarint(cproto.ValueNull)
			return nil
		}
		b.PutUvarint(cproto.ValueTuple).PutUvarint(uint64(rv.Len()))
		for i := range rv.Len() {
			if err := putValue(b, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%v: %w", rv.Type(), cjson.ErrUnsupportedType)
	}
	return nil
}

func isListValue(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Slice:
		return rv.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return rv.Type() != uuidType
	default:
		return false
	}
}

func anys[S ~[]E, E any](values S) []any {
	result := make([]any, len(values))
	for i, v := range values {
		result[i] = v
	}
	return result
}
