package bindingtest

import (
	"context"
	"errors"
	"testing"

	"github.com/andreyvit/rxdb/binding"
	"github.com/andreyvit/rxdb/cjson"
	"github.com/andreyvit/rxdb/cproto"
)

func query(ns string) []byte {
	return cproto.NewBuffer().PutVString(ns).PutUvarint(cproto.QueryEnd).Bytes()
}

func TestServer_Paging(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := range 5 {
		s.Put("items", cjson.Object{{Name: "id", Value: cjson.Int(i)}})
	}

	res, err := s.SelectQuery(ctx, query("items"), 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalCount != 5 || len(res.Items) != 2 || res.Handle == 0 || len(res.PayloadTypes) != 1 {
		t.Fatalf("first page = %+v", res)
	}
	pt := res.PayloadTypes[0]
	h := res.Handle

	res, err = s.FetchResults(ctx, h, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 2 || res.Handle != h {
		t.Fatalf("second page = %+v", res)
	}
	res, err = s.FetchResults(ctx, h, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 1 || res.Handle != 0 || s.OpenCursors() != 0 {
		t.Fatalf("last page = %+v", res)
	}
	obj, err := cjson.Decode(pt, res.Items[0])
	if err != nil {
		t.Fatal(err)
	}
	if cjson.Dump(obj) != "{id:4}" {
		t.Fatalf("last item = %s", cjson.Dump(obj))
	}

	_, err = s.FetchResults(ctx, h, 2)
	if !errors.Is(err, binding.ErrUnknownHandle) {
		t.Fatalf("fetch after exhaustion = %v", err)
	}

	res, err = s.SelectQuery(ctx, query("items"), 0, []int64{pt.StateToken})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 5 || res.Handle != 0 || len(res.PayloadTypes) != 0 {
		t.Fatalf("unpaged select = %+v", res)
	}
}

func TestServer_Close(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Put("items", cjson.Object{{Name: "id", Value: cjson.Int(1)}}, cjson.Object{{Name: "id", Value: cjson.Int(2)}})
	res, err := s.SelectQuery(ctx, query("items"), 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CloseResults(ctx, res.Handle); err != nil {
		t.Fatal(err)
	}
	if s.ClosedCursors() != 1 || s.OpenCursors() != 0 {
		t.Fatalf("closed=%d open=%d", s.ClosedCursors(), s.OpenCursors())
	}
	if err := s.CloseResults(ctx, res.Handle); !errors.Is(err, binding.ErrUnknownHandle) {
		t.Fatalf("second close = %v", err)
	}
}

func TestServer_ModifyItemConfirmsTags(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.OpenNamespace(ctx, "items", binding.DefaultNamespaceOptions()); err != nil {
		t.Fatal(err)
	}
	pt := s.PayloadType("items")

	data, err := cjson.Encode(cjson.Object{{Name: "id", Value: cjson.Int(1)}, {Name: "name", Value: cjson.String("a")}}, cjson.NewTagMatcher(pt))
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.ModifyItem(ctx, "items", cproto.FormatCJSON, data, cproto.ModeUpsert, pt.StateToken)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalCount != 1 || len(res.PayloadTypes) != 1 {
		t.Fatalf("ModifyItem = %+v", res)
	}
	newPT := res.PayloadTypes[0]
	if newPT.Version != pt.Version+1 || newPT.NameToTag("name") != 2 {
		t.Fatalf("confirmed payload type = %v %v", newPT, newPT.Tags)
	}

	s.StrictStateTokens = true
	_, err = s.ModifyItem(ctx, "items", cproto.FormatCJSON, data, cproto.ModeUpsert, pt.StateToken)
	if !errors.Is(err, binding.ErrSchemaStale) {
		t.Fatalf("stale ModifyItem = %v", err)
	}

	del, err := cjson.Encode(cjson.Object{{Name: "id", Value: cjson.Int(1)}}, cjson.NewTagMatcher(newPT))
	if err != nil {
		t.Fatal(err)
	}
	res, err = s.ModifyItem(ctx, "items", cproto.FormatCJSON, del, cproto.ModeDelete, newPT.StateToken)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalCount != 1 || len(s.Items("items")) != 0 {
		t.Fatalf("delete = %+v, items %v", res, s.Items("items"))
	}
}

func TestServer_FailNext(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	s.FailNext(boom)
	if err := s.OpenNamespace(context.Background(), "x", binding.NamespaceOptions{}); err != boom {
		t.Fatalf("OpenNamespace = %v", err)
	}
	if err := s.OpenNamespace(context.Background(), "x", binding.NamespaceOptions{}); err != nil {
		t.Fatal(err)
	}
	if s.CallCount("OpenNamespace") != 2 {
		t.Fatalf("calls = %v", s.Calls())
	}
}
