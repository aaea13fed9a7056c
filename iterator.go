package rxdb

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"reflect"

	"github.com/andreyvit/rxdb/binding"
)

// Iterator walks the results of a select, fetching further pages from the
// server as needed:
//
//	it := ns.Query().Where("age", rxdb.GT, 18).Exec(ctx)
//	defer it.Close()
//	for it.Next() {
//		use(it.Object())
//	}
//	if err := it.Err(); err != nil { ... }
//
// An Iterator is not safe for concurrent use.
type Iterator[T any] struct {
	ns         *Namespace[T]
	ctx        context.Context
	handle     int64
	fetchCount int
	total      int
	delivered  int
	fetched    int

	format int
	page   [][]byte
	pos    int
	cur    *T
	err    error
	closed bool

	closeErr error
}

func newIterator[T any](ctx context.Context, ns *Namespace[T], res *binding.QueryResult, fetchCount int) *Iterator[T] {
	it := &Iterator[T]{
		ns:         ns,
		ctx:        ctx,
		handle:     res.Handle,
		fetchCount: fetchCount,
		total:      res.TotalCount,
	}
	it.setPage(res)
	return it
}

func errIterator[T any](err error) *Iterator[T] {
	return &Iterator[T]{err: err, closed: true}
}

func (it *Iterator[T]) setPage(res *binding.QueryResult) {
	it.format = res.Format
	it.page = res.Items
	it.pos = 0
	it.fetched += len(res.Items)
}

// exhausted reports whether every item on the server has been fetched.
func (it *Iterator[T]) exhausted() bool {
	return it.fetched >= it.total
}

// Next advances to the next item. It returns false once all items were
// delivered, after an error, or after Close.
func (it *Iterator[T]) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	if it.pos >= len(it.page) {
		if it.exhausted() {
			it.release()
			return false
		}
		if it.fetchCount <= 0 {
			it.fail(fmt.Errorf("%w: got %d of %d items in one page", ErrShortResults, it.fetched, it.total))
			return false
		}
		if !it.fetchPage() {
			return false
		}
	}

	ns := it.ns
	item := new(T)
	err := ns.db.codec.decodeResultItem(it.format, ns.db.schemas.load(ns.name), it.page[it.pos], reflect.ValueOf(item))
	it.pos++
	if err != nil {
		it.err = nsErrf(ns.name, "decode", err, "item %d", it.delivered)
		it.cur = nil
		it.release()
		return false
	}
	ns.db.counters.itemsDecoded.Add(1)
	it.cur = item
	it.delivered++
	return true
}

func (it *Iterator[T]) fetchPage() bool {
	db := it.ns.db
	db.counters.pageFetches.Add(1)
	res, err := db.binding.FetchResults(it.ctx, it.handle, it.fetchCount)
	if err != nil {
		db.handleStale(it.ctx, err)
		it.fail(err)
		return false
	}
	if len(res.Items) == 0 {
		it.fail(fmt.Errorf("%w after %d of %d items", ErrEmptyPage, it.fetched, it.total))
		return false
	}
	if db.verbose {
		db.logger.LogAttrs(it.ctx, slog.LevelDebug, "rxdb: page fetched", slog.String("ns", it.ns.name), slog.Int64("handle", it.handle), slog.Int("count", len(res.Items)), slog.Int("fetched", it.fetched+len(res.Items)), slog.Int("total", it.total))
	}
	db.installPayloadTypes(it.ctx, res.PayloadTypes)
	it.setPage(res)
	return true
}

// fail records err and releases the server-side result set.
func (it *Iterator[T]) fail(err error) {
	it.err = nsErr(it.ns.name, "fetch", err)
	it.cur = nil
	it.release()
}

func (it *Iterator[T]) release() {
	if it.closed {
		return
	}
	it.closed = true
	it.page = nil
	it.cur = nil
	if it.exhausted() || it.handle == 0 {
		return
	}
	db := it.ns.db
	db.counters.cursorCloses.Add(1)
	if err := db.binding.CloseResults(it.ctx, it.handle); err != nil {
		db.logger.LogAttrs(it.ctx, slog.LevelWarn, "rxdb: failed to close results", slog.String("ns", it.ns.name), slog.Int64("handle", it.handle), slog.Any("err", err))
		it.closeErr = nsErr(it.ns.name, "close", err)
	}
}

// Object returns the current item. Valid after Next returned true.
func (it *Iterator[T]) Object() *T {
	return it.cur
}

func (it *Iterator[T]) Err() error {
	return it.err
}

// Count returns the number of items delivered so far.
func (it *Iterator[T]) Count() int {
	return it.delivered
}

// TotalCount returns the number of items matched by the query, as reported by
// the server.
func (it *Iterator[T]) TotalCount() int {
	return it.total
}

// Close releases the server-side result set if it was not fully fetched.
// Closing twice is a no-op.
func (it *Iterator[T]) Close() error {
	it.release()
	return it.closeErr
}

// All collects the remaining items and closes the iterator.
func (it *Iterator[T]) All() ([]*T, error) {
	defer it.Close()
	var result []*T
	for it.Next() {
		result = append(result, it.Object())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Items yields the remaining items; stopping early closes the iterator.
// Check Err after the loop.
func (it *Iterator[T]) Items() iter.Seq[*T] {
	return func(yield func(*T) bool) {
		defer it.Close()
		for it.Next() {
			if !yield(it.Object()) {
				return
			}
		}
	}
}
