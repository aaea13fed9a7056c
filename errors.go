package rxdb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAlreadyJoined     = errors.New("query is already joined")
	ErrNoJoin            = errors.New("On without a preceding Join")
	ErrNestedJoin        = errors.New("joined queries cannot have joins of their own")
	ErrNotFound          = errors.New("not found")
	ErrMoreThanOne       = errors.New("more than one item")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrInvalidEnum       = errors.New("invalid enum value")
	ErrInvalidKnnParams  = errors.New("invalid KNN search parameters")
	ErrEmptyPage         = errors.New("server returned an empty page")
	ErrShortResults      = errors.New("server returned fewer items than its total")
	ErrUnsupportedFormat = errors.New("unsupported item format")
)

// NamespaceError adds the namespace and operation to errors returned by the
// transport or the item codec.
type NamespaceError struct {
	Namespace string
	Op        string
	Msg       string
	Err       error
}

func nsErrf(ns, op string, err error, format string, args ...any) error {
	return &NamespaceError{ns, op, fmt.Sprintf(format, args...), err}
}

func nsErr(ns, op string, err error) error {
	if err == nil {
		return nil
	}
	return &NamespaceError{Namespace: ns, Op: op, Err: err}
}

func (e *NamespaceError) Unwrap() error {
	return e.Err
}

func (e *NamespaceError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Namespace)
	if e.Op != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Op)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
