package rxdb

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/andreyvit/rxdb/binding"
	"github.com/andreyvit/rxdb/cjson"
	"github.com/andreyvit/rxdb/cproto"
)

// Namespace is a typed handle to a server namespace holding items of type T.
// It is safe for concurrent use.
type Namespace[T any] struct {
	db    *DB
	name  string
	model *FieldModel
}

// OpenNamespace opens (creating if needed) namespace name on the server and
// checks that T can be mapped onto items.
func OpenNamespace[T any](ctx context.Context, db *DB, name string, opts binding.NamespaceOptions) (*Namespace[T], error) {
	model, err := db.codec.models.FieldsOf(reflect.TypeFor[T]())
	if err != nil {
		return nil, nsErr(name, "open", err)
	}
	if err := db.binding.OpenNamespace(ctx, name, opts); err != nil {
		return nil, nsErr(name, "open", err)
	}
	db.logger.LogAttrs(ctx, slog.LevelDebug, "rxdb: namespace opened", slog.String("ns", name), slog.String("type", model.Type.String()))
	return &Namespace[T]{db: db, name: name, model: model}, nil
}

func (ns *Namespace[T]) Name() string {
	return ns.name
}

func (ns *Namespace[T]) DB() *DB {
	return ns.db
}

// PayloadType returns the cached schema of the namespace, or nil before the
// server has sent one.
func (ns *Namespace[T]) PayloadType() *cjson.PayloadType {
	return ns.db.schemas.load(ns.name)
}

// Query starts a new query on the namespace.
func (ns *Namespace[T]) Query() *Query[T] {
	return &Query[T]{ns: ns, b: newQueryBuilder(ns.db, ns.name)}
}

// Upsert inserts item or replaces the item with the same primary key.
func (ns *Namespace[T]) Upsert(ctx context.Context, item *T) (int, error) {
	return ns.modify(ctx, "upsert", cproto.ModeUpsert, item)
}

// Insert stores item unless an item with the same primary key exists.
// Returns the number of stored items.
func (ns *Namespace[T]) Insert(ctx context.Context, item *T) (int, error) {
	return ns.modify(ctx, "insert", cproto.ModeInsert, item)
}

// Update replaces an existing item. Returns 0 if there was none.
func (ns *Namespace[T]) Update(ctx context.Context, item *T) (int, error) {
	return ns.modify(ctx, "update", cproto.ModeUpdate, item)
}

// Delete removes the item with the primary key of item.
func (ns *Namespace[T]) Delete(ctx context.Context, item *T) (int, error) {
	return ns.modify(ctx, "delete", cproto.ModeDelete, item)
}

// Encode returns the CJSON encoding of item against the cached schema and
// the payload type it was encoded against (nil when none is cached).
func (ns *Namespace[T]) Encode(item *T) ([]byte, *cjson.PayloadType, error) {
	if item == nil {
		return nil, nil, fmt.Errorf("nil item: %w", cjson.ErrUnsupportedType)
	}
	obj, err := ns.db.codec.encodeItem(reflect.ValueOf(item).Elem())
	if err != nil {
		return nil, nil, err
	}
	pt := ns.db.schemas.load(ns.name)
	data, err := cjson.Encode(obj, cjson.NewTagMatcher(pt))
	if err != nil {
		return nil, nil, err
	}
	ns.db.counters.itemsEncoded.Add(1)
	return data, pt, nil
}

// Decode decodes one CJSON item against the cached schema.
func (ns *Namespace[T]) Decode(data []byte) (*T, error) {
	item := new(T)
	err := ns.db.codec.decodeResultItem(cproto.FormatCJSON, ns.db.schemas.load(ns.name), data, reflect.ValueOf(item))
	if err != nil {
		return nil, err
	}
	ns.db.counters.itemsDecoded.Add(1)
	return item, nil
}

func (ns *Namespace[T]) modify(ctx context.Context, op string, mode int, item *T) (int, error) {
	db := ns.db
	data, pt, err := ns.Encode(item)
	if err != nil {
		return 0, nsErr(ns.name, op, err)
	}
	var stateToken int64
	if pt != nil {
		stateToken = pt.StateToken
	}
	if db.verbose {
		db.logger.LogAttrs(ctx, slog.LevelDebug, "rxdb: modify", slog.String("ns", ns.name), slog.String("op", op), slog.Int64("state_token", stateToken), hexAttr("data", data))
	}

	db.counters.modifies.Add(1)
	res, err := db.binding.ModifyItem(ctx, ns.name, cproto.FormatCJSON, data, mode, stateToken)
	if err != nil {
		db.handleStale(ctx, err)
		return 0, nsErr(ns.name, op, err)
	}
	db.installPayloadTypes(ctx, res.PayloadTypes)
	return res.TotalCount, nil
}
