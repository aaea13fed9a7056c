package cjson

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/andreyvit/rxdb/cproto"
	"github.com/google/uuid"
)

var testPT = NewPayloadType(7, "items", 3, 42, 0, []string{"id", "name", "uid", "xs", "nested"}, nil)

func TestCtag(t *testing.T) {
	c := mkctag(TagUUID, 3)
	eq(t, c.Type(), TagUUID)
	eq(t, c.Name(), 3)
	eq(t, c.Field(), 0)
	eq(t, hex.EncodeToString(cproto.NewBuffer().PutUvarint(uint64(c)).Bytes()), "98808010")

	eq(t, mkctag(TagString, 2), ctag(0x12))
	eq(t, mkctag(TagObject, 0), ctag(6))
	eq(t, mkctag(TagEnd, 0), ctag(7))
	eq(t, mkctag(TagFloat, 1).Type(), TagFloat)

	at := mkcarraytag(2, TagObject)
	eq(t, at, uint32(0x06000002))
	eq(t, carraytagCount(at), 2)
	eq(t, carraytagType(at), TagObject)
}

func TestEncode_Bytes(t *testing.T) {
	tests := []struct {
		name string
		obj  Object
		exp  string
	}{
		{"int", Object{{"id", Int(77)}}, "06 08 9a01 07"},
		{"string", Object{{"name", String("ab")}}, "06 12 026162 07"},
		{"negative", Object{{"id", Int(-1)}}, "06 08 01 07"},
		{"homogeneous array", Object{{"xs", Array{Int(1), Int(2)}}}, "06 25 02000000 02 04 07"},
		{"heterogeneous array", Object{{"xs", Array{Int(1), String("a")}}}, "06 25 02000006 00 02 02 0161 07"},
		{"empty array", Object{{"xs", Array{}}}, "06 25 00000006 07"},
		{"nested", Object{{"nested", Object{{"id", Int(0)}}}}, "06 2e 08 00 07 07"},
		{"empty", Object{}, "06 07"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewTagMatcher(testPT)
			data, err := Encode(tt.obj, m)
			ok(t, err)
			eq(t, m.Updated(), false)
			eq(t, hex.EncodeToString(data), hex.EncodeToString(x(tt.exp)))
		})
	}
}

func TestEncode_TagsHeader(t *testing.T) {
	m := NewTagMatcher(nil)
	data, err := Encode(Object{{"a", Int(1)}}, m)
	ok(t, err)
	eq(t, m.Base(), 0)
	deepEqual(t, m.NewTags(), []string{"a"})
	eq(t, hex.EncodeToString(data), "07"+"04000000"+"06080207"+"00"+"01"+"0161")

	base, names, err := ItemTags(data)
	ok(t, err)
	eq(t, base, 0)
	deepEqual(t, names, []string{"a"})

	obj, err := Decode(nil, data)
	ok(t, err)
	deepEqual(t, obj, Object{{"a", Int(1)}})
}

func TestEncode_TagsHeaderMixesKnownAndNew(t *testing.T) {
	m := NewTagMatcher(testPT)
	in := Object{{"id", Int(1)}, {"color", String("red")}, {"nested", Object{{"size", Int(3)}, {"color", String("blue")}}}}
	data, err := Encode(in, m)
	ok(t, err)
	eq(t, m.Base(), 5)
	deepEqual(t, m.NewTags(), []string{"color", "size"})
	eq(t, testPT.TagCount(), 5)
	eq(t, testPT.NameToTag("color"), 0)

	out, err := Decode(testPT, data)
	ok(t, err)
	deepEqual(t, out, in)

	confirmed := NewPayloadType(7, "items", 4, 43, 0, append(append([]string(nil), testPT.Tags...), "color", "size"), nil)
	data2, err := Encode(in, NewTagMatcher(confirmed))
	ok(t, err)
	_, names, err := ItemTags(data2)
	ok(t, err)
	eq(t, len(names), 0)
	out, err = Decode(confirmed, data2)
	ok(t, err)
	deepEqual(t, out, in)
}

func TestRoundTrip(t *testing.T) {
	u := UUID(uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"))
	in := Object{
		{"id", Int(-12345678901)},
		{"name", String("héllo")},
		{"uid", u},
		{"xs", Array{Double(1.5), Double(-2.25)}},
		{"nested", Object{
			{"flag", Bool(true)},
			{"none", Null{}},
			{"list", Array{Null{}, Object{{"id", Int(1)}}, Array{String("deep")}, u}},
			{"empty", Object{}},
		}},
	}
	data, err := Encode(in, NewTagMatcher(testPT))
	ok(t, err)
	out, err := Decode(testPT, data)
	ok(t, err)
	deepEqual(t, out, in)
	eq(t, out.Get("uid").Kind(), KindUUID)
	eq(t, out.Get("uid").(UUID).String(), "550e8400-e29b-41d4-a716-446655440000")
}

func TestDecode_SupersetSchema(t *testing.T) {
	small := NewPayloadType(1, "ns", 1, 1, 0, []string{"id", "name"}, nil)
	big := NewPayloadType(1, "ns", 2, 2, 0, []string{"id", "name", "added"}, nil)
	in := Object{{"id", Int(5)}, {"name", String("x")}}
	data, err := Encode(in, NewTagMatcher(small))
	ok(t, err)
	out, err := Decode(big, data)
	ok(t, err)
	deepEqual(t, out, in)
}

func TestDecode_UnknownTag(t *testing.T) {
	data, err := Encode(Object{{"name", String("x")}}, NewTagMatcher(testPT))
	ok(t, err)
	narrow := NewPayloadType(7, "items", 1, 1, 0, []string{"id"}, nil)
	_, err = Decode(narrow, data)
	eq(t, errors.Is(err, ErrUnknownTag), true)
	var ute *UnknownTagError
	eq(t, errors.As(err, &ute), true)
	eq(t, ute.Tag, 2)
	eq(t, ute.Namespace, "items")
}

func TestDecode_Float(t *testing.T) {
	b := cproto.NewBuffer()
	b.PutUvarint(uint64(mkctag(TagObject, 0)))
	b.PutUvarint(uint64(mkctag(TagFloat, 1)))
	b.PutFloat(1.5)
	b.PutUvarint(uint64(mkctag(TagEnd, 0)))
	out, err := Decode(testPT, b.Bytes())
	ok(t, err)
	deepEqual(t, out, Object{{"id", Double(1.5)}})
}

func TestDecode_Errors(t *testing.T) {
	good, err := Encode(Object{{"id", Int(77)}, {"name", String("abc")}}, NewTagMatcher(testPT))
	ok(t, err)

	t.Run("truncated", func(t *testing.T) {
		for n := 0; n < len(good); n++ {
			_, err := Decode(testPT, good[:n])
			if !errors.Is(err, cproto.ErrTruncatedData) {
				t.Fatalf("Decode(%x) = %v, wanted ErrTruncatedData", good[:n], err)
			}
		}
	})
	t.Run("trailing", func(t *testing.T) {
		_, err := Decode(testPT, append(append([]byte(nil), good...), 0x00))
		var de *cproto.DataError
		eq(t, errors.As(err, &de), true)
	})
	t.Run("not an object", func(t *testing.T) {
		_, err := Decode(testPT, x("08 02"))
		var de *cproto.DataError
		eq(t, errors.As(err, &de), true)
	})
	t.Run("stray end", func(t *testing.T) {
		_, err := Decode(testPT, x("06 0f 07"))
		var de *cproto.DataError
		eq(t, errors.As(err, &de), true)
	})
	t.Run("unknown type", func(t *testing.T) {
		b := cproto.NewBuffer()
		b.PutUvarint(uint64(mkctag(TagObject, 0)))
		b.PutUvarint(uint64(mkctag(12, 1)))
		_, err := Decode(testPT, b.Bytes())
		var de *cproto.DataError
		eq(t, errors.As(err, &de), true)
	})
	t.Run("huge array", func(t *testing.T) {
		_, err := Decode(testPT, x("06 25 ffffff00 07"))
		eq(t, errors.Is(err, cproto.ErrTruncatedData), true)
	})
}

func TestPayloadType_Tags(t *testing.T) {
	for _, name := range testPT.Tags {
		tag := testPT.NameToTag(name)
		if tag == 0 {
			t.Fatalf("NameToTag(%q) = 0", name)
		}
		got, err := testPT.TagToName(tag)
		ok(t, err)
		eq(t, got, name)
	}
	eq(t, testPT.NameToTag("absent"), 0)
	name, err := testPT.TagToName(0)
	ok(t, err)
	eq(t, name, "")

	name, err = testPT.TagToName(1 | 1<<12)
	ok(t, err)
	eq(t, name, "id")

	_, err = testPT.TagToName(6)
	eq(t, errors.Is(err, ErrUnknownTag), true)

	var none *PayloadType
	eq(t, none.NameToTag("id"), 0)
	eq(t, none.TagCount(), 0)
	_, err = none.TagToName(1)
	eq(t, errors.Is(err, ErrUnknownTag), true)
}

func TestPayloadType_Versions(t *testing.T) {
	v1 := NewPayloadType(1, "ns", 1, 10, 0, []string{"a"}, nil)
	v2 := NewPayloadType(1, "ns", 2, 11, 0, []string{"a", "b"}, nil)
	eq(t, v1.IsNewerThan(nil), true)
	eq(t, v2.IsNewerThan(v1), true)
	eq(t, v1.IsNewerThan(v2), false)
	eq(t, v1.IsNewerThan(v1), false)

	eq(t, v1.Fingerprint() == v2.Fingerprint(), false)
	eq(t, v1.Fingerprint(), NewPayloadType(1, "ns", 1, 10, 0, []string{"a"}, nil).Fingerprint())
	eq(t, v2.String(), "ns v2 st11 (2 tags)")

	assertPanics(t, func() {
		NewPayloadType(1, "ns", 1, 1, 0, []string{"a", "a"}, nil)
	})
	assertPanics(t, func() {
		(&PayloadType{Tags: []string{"a"}}).NameToTag("a")
	})
	eq(t, (&PayloadType{Tags: []string{"a"}}).Init().NameToTag("a"), 1)
}

func TestTagMatcher(t *testing.T) {
	m := NewTagMatcher(testPT)
	tag, err := m.Tag("")
	ok(t, err)
	eq(t, tag, 0)
	tag, err = m.Tag("name")
	ok(t, err)
	eq(t, tag, 2)
	tag, err = m.Tag("new1")
	ok(t, err)
	eq(t, tag, 6)
	tag, err = m.Tag("new2")
	ok(t, err)
	eq(t, tag, 7)
	tag, err = m.Tag("new1")
	ok(t, err)
	eq(t, tag, 6)
	deepEqual(t, m.NewTags(), []string{"new1", "new2"})
	eq(t, m.PayloadType(), testPT)
	eq(t, testPT.NameToTag("new1"), 0)
}

func TestTagMatcher_Exhausted(t *testing.T) {
	tags := make([]string, tagNameMask)
	for i := range tags {
		tags[i] = "f" + hex.EncodeToString([]byte{byte(i >> 8), byte(i)})
	}
	m := NewTagMatcher(NewPayloadType(1, "big", 1, 1, 0, tags, nil))
	_, err := m.Tag("one-too-many")
	eq(t, errors.Is(err, ErrTagSpaceExhausted), true)

	_, err = Encode(Object{{"one-too-many", Int(1)}}, NewTagMatcher(NewPayloadType(1, "big", 1, 1, 0, tags, nil)))
	eq(t, errors.Is(err, ErrTagSpaceExhausted), true)
}

func TestDump(t *testing.T) {
	u := UUID(uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"))
	v := Object{
		{"a", Int(1)},
		{"b", Array{Bool(true), Null{}, Double(0.5)}},
		{"c", String("x\"y")},
		{"d", u},
	}
	eq(t, Dump(v), `{a:1,b:[true,null,0.5],c:"x\"y",d:u"550e8400-e29b-41d4-a716-446655440000"}`)
	eq(t, Dump(nil), "<nil>")
	eq(t, KindObject.String(), "object")
	eq(t, Kind(99).String(), "kind(99)")
}
