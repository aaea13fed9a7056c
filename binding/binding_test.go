package binding

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/andreyvit/rxdb/cjson"
	"github.com/andreyvit/rxdb/cproto"
)

func eq[T comparable](t testing.TB, a, e T) {
	if a != e {
		t.Helper()
		t.Fatalf("** got %v, wanted %v", a, e)
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func TestQueryResult_RoundTrip(t *testing.T) {
	pt := cjson.NewPayloadType(3, "items", 5, -17, 24, []string{"id", "name"}, []cjson.PayloadField{
		{Type: 1, Name: "id", Offset: 0, Size: 8},
		{Type: 4, Name: "tags", Offset: 8, Size: 16, IsArray: true, JSONPaths: []string{"tags", "meta.tags"}},
	})
	in := &QueryResult{
		Handle:       12,
		TotalCount:   100,
		Count:        2,
		Format:       cproto.FormatCJSON,
		Items:        [][]byte{{0x06, 0x07}, {}},
		PayloadTypes: []*cjson.PayloadType{pt},
	}
	b := cproto.NewBuffer()
	AppendQueryResult(b, in)

	out, err := ParseQueryResult(b.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	eq(t, out.Handle, in.Handle)
	eq(t, out.TotalCount, 100)
	eq(t, out.Count, 2)
	eq(t, out.Format, cproto.FormatCJSON)
	deepEqual(t, out.Items, in.Items)
	eq(t, len(out.PayloadTypes), 1)

	got := out.PayloadTypes[0]
	eq(t, got.NamespaceID, int64(3))
	eq(t, got.NamespaceName, "items")
	eq(t, got.Version, int64(5))
	eq(t, got.StateToken, int64(-17))
	eq(t, got.PStringHdrOffset, int64(24))
	deepEqual(t, got.Tags, pt.Tags)
	deepEqual(t, got.Fields, pt.Fields)
	eq(t, got.NameToTag("name"), 2)
	eq(t, got.Fingerprint(), pt.Fingerprint())
}

func TestQueryResult_NoPayloadTypes(t *testing.T) {
	b := cproto.NewBuffer()
	AppendQueryResult(b, &QueryResult{TotalCount: 0, Format: cproto.FormatJSON})
	deepEqual(t, b.Bytes(), []byte{0, 0, 0, 0})

	out, err := ParseQueryResult(b.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	eq(t, len(out.PayloadTypes), 0)
	eq(t, len(out.Items), 0)
}

func TestParseQueryResult_Errors(t *testing.T) {
	b := cproto.NewBuffer()
	AppendQueryResult(b, &QueryResult{
		Handle:       1,
		TotalCount:   2,
		Items:        [][]byte{[]byte("abc"), []byte("de")},
		PayloadTypes: []*cjson.PayloadType{cjson.NewPayloadType(1, "ns", 1, 1, 0, []string{"a"}, nil)},
	})
	good := b.Bytes()
	for n := 0; n < len(good); n++ {
		_, err := ParseQueryResult(good[:n])
		if !errors.Is(err, cproto.ErrTruncatedData) {
			t.Fatalf("ParseQueryResult(%x) = %v, wanted ErrTruncatedData", good[:n], err)
		}
	}

	_, err := ParseQueryResult(append(append([]byte(nil), good...), 1))
	var de *cproto.DataError
	eq(t, errors.As(err, &de), true)

	_, err = ParseQueryResult([]byte{0x40, 0, 0, 0})
	eq(t, errors.As(err, &de), true)

	dup := cproto.NewBuffer()
	AppendQueryResult(dup, &QueryResult{PayloadTypes: []*cjson.PayloadType{{NamespaceName: "ns", Tags: []string{"a", "a"}}}})
	_, err = ParseQueryResult(dup.Bytes())
	eq(t, errors.As(err, &de), true)
}

func TestNewestPayloadType(t *testing.T) {
	v1 := cjson.NewPayloadType(1, "a", 1, 1, 0, nil, nil)
	v3 := cjson.NewPayloadType(1, "a", 3, 3, 0, nil, nil)
	v2 := cjson.NewPayloadType(1, "a", 2, 2, 0, nil, nil)
	other := cjson.NewPayloadType(2, "b", 9, 9, 0, nil, nil)
	r := &QueryResult{PayloadTypes: []*cjson.PayloadType{v1, other, v3, v2}}
	eq(t, r.NewestPayloadType("a"), v3)
	eq(t, r.NewestPayloadType("b"), other)
	eq(t, r.NewestPayloadType("c"), (*cjson.PayloadType)(nil))
}

func TestSchemaStaleError(t *testing.T) {
	var err error = &SchemaStaleError{Namespace: "items"}
	eq(t, errors.Is(err, ErrSchemaStale), true)
	eq(t, err.Error(), "items: schema is stale (0 fresh payload types)")
}

func TestNamespaceDef(t *testing.T) {
	raw := DefaultNamespaceOptions().NamespaceDef("items")
	var def map[string]any
	if err := json.Unmarshal(raw, &def); err != nil {
		t.Fatal(err)
	}
	eq(t, def["name"].(string), "items")
	storage := def["storage"].(map[string]any)
	eq(t, storage["enabled"].(bool), true)
	eq(t, storage["create_if_missing"].(bool), true)
	eq(t, def["cache"].(map[string]any)["items_count"].(float64), float64(DefaultObjCacheItemsCount))
}
