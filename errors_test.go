package rxdb

import (
	"errors"
	"testing"
)

func TestNamespaceError(t *testing.T) {
	inner := errors.New("inner")

	err := nsErr("items", "fetch", inner)
	eq(t, err.Error(), "items.fetch: inner")
	if !errors.Is(err, inner) {
		t.Fatalf("** errors.Is(err, inner) = false, wanted true")
	}
	if nsErr("items", "fetch", nil) != nil {
		t.Fatalf("** nsErr wrapped a nil error")
	}

	err = nsErrf("items", "", inner, "bad %d", 5)
	eq(t, err.Error(), "items: bad 5: inner")
	eq(t, (&NamespaceError{Namespace: "orders", Op: "open", Msg: "no"}).Error(), "orders.open: no")
}
