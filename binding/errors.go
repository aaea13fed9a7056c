package binding

import (
	"errors"
	"fmt"

	"github.com/andreyvit/rxdb/cjson"
)

var (
	ErrSchemaStale   = errors.New("schema is stale")
	ErrUnknownHandle = errors.New("unknown result handle")
)

// SchemaStaleError is returned by a Binding when the server rejected a request
// made against an outdated payload type. PayloadTypes holds the current ones;
// the caller installs them and retries.
type SchemaStaleError struct {
	Namespace    string
	PayloadTypes []*cjson.PayloadType
}

func (e *SchemaStaleError) Error() string {
	return fmt.Sprintf("%s: %v (%d fresh payload types)", e.Namespace, ErrSchemaStale, len(e.PayloadTypes))
}

func (e *SchemaStaleError) Is(target error) bool {
	return target == ErrSchemaStale
}
