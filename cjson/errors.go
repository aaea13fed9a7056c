package cjson

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTag        = errors.New("unknown tag")
	ErrInvalidUUIDFormat = errors.New("invalid UUID format")
	ErrUnsupportedType   = errors.New("unsupported type")
	ErrTagSpaceExhausted = errors.New("tag space exhausted")
)

type UnknownTagError struct {
	Tag       int
	Namespace string
}

func (e *UnknownTagError) Error() string {
	if e.Namespace == "" {
		return fmt.Sprintf("unknown tag %d", e.Tag)
	}
	return fmt.Sprintf("%s: unknown tag %d", e.Namespace, e.Tag)
}

func (e *UnknownTagError) Is(target error) bool {
	return target == ErrUnknownTag
}
