package rxdb

import (
	"context"
	"errors"
	"testing"

	"github.com/andreyvit/rxdb/binding"
	"github.com/andreyvit/rxdb/cjson"
	"github.com/andreyvit/rxdb/cproto"
)

func TestOpenNamespace(t *testing.T) {
	ctx := context.Background()
	db, srv := setup(t, Options{})

	opts := binding.DefaultNamespaceOptions()
	opts.EnableStorage = false
	items := must(OpenNamespace[Item](ctx, db, "items", opts))
	eq(t, items.Name(), "items")
	eq(t, items.DB(), db)
	isnil(t, items.PayloadType())
	deepEqual(t, srv.NamespaceOptions("items"), opts)

	_, err := OpenNamespace[int](ctx, db, "ints", opts)
	if err == nil {
		t.Fatalf("** OpenNamespace accepted a non-struct type")
	}
	eq(t, srv.CallCount("OpenNamespace"), 1)

	boom := errors.New("boom")
	srv.FailNext(boom)
	_, err = OpenNamespace[Item](ctx, db, "other", opts)
	fails(t, err, boom)
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	db, srv := setup(t, Options{})
	items := openItems(t, db)

	n, err := items.Upsert(ctx, &Item{ID: 1, Name: "first", Status: StatusPublished, Secret: "s"})
	ok(t, err)
	eq(t, n, 1)

	call, _ := srv.LastCall("ModifyItem")
	eq(t, call.Mode, cproto.ModeUpsert)
	deepEqual(t, call.StateTokens, []int64{0})

	// the server confirmed the new tags and sent back its payload type
	pt := items.PayloadType()
	deepEqual(t, pt.Tags, []string{"id", "name", "status"})
	eq(t, pt.StateToken, srv.PayloadType("items").StateToken)
	eq(t, cjson.Dump(srv.Items("items")[0]), `{id:1,name:"first",status:"published"}`)

	n, err = items.Upsert(ctx, &Item{ID: 1, Name: "renamed", Tags: []string{"x"}})
	ok(t, err)
	eq(t, n, 1)
	call, _ = srv.LastCall("ModifyItem")
	deepEqual(t, call.StateTokens, []int64{pt.StateToken})
	deepEqual(t, items.PayloadType().Tags, []string{"id", "name", "status", "tags"})
	eq(t, len(srv.Items("items")), 1)

	got := must(items.Query().GetOne(ctx))
	deepEqual(t, got, &Item{ID: 1, Name: "renamed", Tags: []string{"x"}, Status: StatusDraft})

	st := db.Stats()
	eq(t, st.Modifies, uint64(2))
	eq(t, st.ItemsEncoded, uint64(2))
	eq(t, st.SchemaInstalls, uint64(2))
}

func TestInsertUpdateDelete(t *testing.T) {
	ctx := context.Background()
	db, srv := setup(t, Options{})
	items := openItems(t, db)

	n := must(items.Insert(ctx, &Item{ID: 1, Name: "a"}))
	eq(t, n, 1)
	n = must(items.Insert(ctx, &Item{ID: 1, Name: "b"}))
	eq(t, n, 0)
	n = must(items.Update(ctx, &Item{ID: 2, Name: "c"}))
	eq(t, n, 0)
	n = must(items.Update(ctx, &Item{ID: 1, Name: "d"}))
	eq(t, n, 1)
	eq(t, cjson.Dump(srv.Items("items")[0]), `{id:1,name:"d",status:"draft"}`)

	n = must(items.Delete(ctx, &Item{ID: 1}))
	eq(t, n, 1)
	eq(t, len(srv.Items("items")), 0)

	call, _ := srv.LastCall("ModifyItem")
	eq(t, call.Mode, cproto.ModeDelete)
}

func TestModifyEncodeError(t *testing.T) {
	ctx := context.Background()
	db, srv := setup(t, Options{})
	orders := openOrders(t, db)

	_, err := orders.Upsert(ctx, &Order{ID: 1, OwnerID: "not-a-uuid"})
	fails(t, err, cjson.ErrInvalidUUIDFormat)
	_, err = orders.Upsert(ctx, nil)
	fails(t, err, cjson.ErrUnsupportedType)
	eq(t, srv.CallCount("ModifyItem"), 0)

	var ne *NamespaceError
	if !errors.As(err, &ne) || ne.Namespace != "orders" || ne.Op != "upsert" {
		t.Fatalf("** got %v, wanted orders.upsert NamespaceError", err)
	}
}

func TestModifyStaleSchema(t *testing.T) {
	ctx := context.Background()
	db, srv := setup(t, Options{})
	items := openItems(t, db)
	srv.StrictStateTokens = true

	// the client has no payload type yet, the server has one
	item := &Item{ID: 1, Name: "a"}
	_, err := items.Upsert(ctx, item)
	fails(t, err, binding.ErrSchemaStale)
	var stale *binding.SchemaStaleError
	if !errors.As(err, &stale) || stale.Namespace != "items" {
		t.Fatalf("** got %v, wanted SchemaStaleError", err)
	}
	eq(t, items.PayloadType().StateToken, srv.PayloadType("items").StateToken)

	n, err := items.Upsert(ctx, item)
	ok(t, err)
	eq(t, n, 1)

	// another writer adds a field behind our back
	srv.Put("items", cjson.Object{{Name: "id", Value: cjson.Int(2)}, {Name: "extra", Value: cjson.Bool(true)}})
	_, err = items.Upsert(ctx, item)
	fails(t, err, binding.ErrSchemaStale)
	deepEqual(t, items.PayloadType().Tags, []string{"id", "name", "status", "extra"})
	_, err = items.Upsert(ctx, item)
	ok(t, err)

	eq(t, db.Stats().StaleSchemas, uint64(2))
}

func TestSelectStaleSchema(t *testing.T) {
	ctx := context.Background()
	db, srv := setup(t, Options{})
	items := openItems(t, db)
	putItems(srv, 2)

	srv.StaleNext()
	it := items.Query().Exec(ctx)
	fails(t, it.Err(), binding.ErrSchemaStale)
	eq(t, items.PayloadType().Version, srv.PayloadType("items").Version)

	all, err := items.Query().ExecToList(ctx)
	ok(t, err)
	eq(t, len(all), 2)

	// the cached state token went out with the retry, so no payload type came back
	call, _ := srv.LastCall("SelectQuery")
	deepEqual(t, call.StateTokens, []int64{srv.PayloadType("items").StateToken})
}

func TestGetOneFindOne(t *testing.T) {
	ctx := context.Background()
	db, srv := setup(t, Options{})
	items := openItems(t, db)

	item, err := items.Query().FindOne(ctx)
	ok(t, err)
	isnil(t, item)
	_, err = items.Query().GetOne(ctx)
	fails(t, err, ErrNotFound)

	putItems(srv, 1)
	item = must(items.Query().GetOne(ctx))
	eq(t, item.ID, int64(1))

	putItems(srv, 1)
	_, err = items.Query().GetOne(ctx)
	fails(t, err, ErrMoreThanOne)
	_, err = items.Query().FindOne(ctx)
	fails(t, err, ErrMoreThanOne)

	putItems(srv, 1)
	_, err = items.Query().GetOne(ctx)
	fails(t, err, ErrMoreThanOne)
	eq(t, srv.OpenCursors(), 0)
	eq(t, srv.CallCount("CloseResults"), 1)

	// the page size of 2 does not stick to the query
	q := items.Query()
	_, err = q.FindOne(ctx)
	fails(t, err, ErrMoreThanOne)
	call, _ := srv.LastCall("SelectQuery")
	eq(t, call.FetchCount, 2)
	eq(t, len(must(q.ExecToList(ctx))), 3)
	call, _ = srv.LastCall("SelectQuery")
	eq(t, call.FetchCount, DefaultFetchCount)
}

func TestNamespaceEncodeDecode(t *testing.T) {
	db, _ := setup(t, Options{})
	orders := openOrders(t, db)

	ref := "R-1"
	o := &Order{
		ID:      42,
		OwnerID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Total:   12.5,
		Ref:     &ref,
		Lines:   []Line{{"a", 2}, {"b", 1}},
		Cache:   []byte("ignored"),
		Attrs:   map[string]int{"z": 1, "a": 2},
		Prio:    2,
	}
	data, pt, err := orders.Encode(o)
	ok(t, err)
	isnil(t, pt)

	obj := must(cjson.Decode(nil, data))
	eq(t, cjson.Dump(obj), `{id:42,owner:u"6ba7b810-9dad-11d1-80b4-00c04fd430c8",total:12.5,ref:"R-1",lines:[{sku:"a",qty:2},{sku:"b",qty:1}],Attrs:{a:2,z:1},prio:2}`)

	got := must(orders.Decode(data))
	o.Cache = nil
	deepEqual(t, got, o)
	eq(t, db.Stats().ItemsDecoded, uint64(1))
}
