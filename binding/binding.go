// Package binding defines the boundary between the driver core and the
// transport that talks to the server.
//
// The core never opens sockets itself. It hands compiled query streams and
// encoded items to a Binding and receives QueryResult envelopes back.
package binding

import (
	"context"
	"encoding/json"

	"github.com/andreyvit/rxdb/cjson"
)

// Binding is a connection to the server. Implementations must be safe for
// concurrent use; calls on independent queries are not ordered. Byte slices
// passed to a Binding must not be retained after the call returns.
//
// Results that are not fully delivered by SelectQuery stay open on the server
// under QueryResult.Handle until FetchResults delivers the rest or
// CloseResults releases them.
type Binding interface {
	OpenNamespace(ctx context.Context, name string, opts NamespaceOptions) error

	// ModifyItem stores one encoded item. stateToken is that of the payload
	// type the item was encoded against.
	ModifyItem(ctx context.Context, ns string, format int, data []byte, mode int, stateToken int64) (*QueryResult, error)

	// SelectQuery runs a compiled query. stateTokens lists the state tokens of
	// the payload types the client holds for the queried namespace (0 if
	// none), so the server can decide which payload types to send back.
	// fetchCount <= 0 asks for all results at once.
	SelectQuery(ctx context.Context, data []byte, fetchCount int, stateTokens []int64) (*QueryResult, error)

	DeleteQuery(ctx context.Context, data []byte) (int, error)
	UpdateQuery(ctx context.Context, data []byte) (int, error)

	FetchResults(ctx context.Context, handle int64, fetchCount int) (*QueryResult, error)
	CloseResults(ctx context.Context, handle int64) error
}

// QueryResult is one page of a reply.
type QueryResult struct {
	// Handle identifies the server-side result set. Zero when everything was
	// delivered in this page.
	Handle int64

	// TotalCount is the number of matching items across all pages.
	TotalCount int

	// Count is the number of items in this page.
	Count int

	Format int
	Items  [][]byte

	// PayloadTypes carries schema updates for the namespaces involved.
	PayloadTypes []*cjson.PayloadType
}

// NewestPayloadType returns the payload type of namespace ns with the highest
// version, or nil.
func (r *QueryResult) NewestPayloadType(ns string) *cjson.PayloadType {
	var best *cjson.PayloadType
	for _, pt := range r.PayloadTypes {
		if pt.NamespaceName == ns && pt.IsNewerThan(best) {
			best = pt
		}
	}
	return best
}

// NamespaceOptions control how the server opens a namespace.
type NamespaceOptions struct {
	EnableStorage          bool
	CreateStorageIfMissing bool
	DropOnFileFormatError  bool
	DropOnIndexConflict    bool
	DisableObjCache        bool
	ObjCacheItemsCount     int64
}

const DefaultObjCacheItemsCount = 256000

func DefaultNamespaceOptions() NamespaceOptions {
	return NamespaceOptions{
		EnableStorage:          true,
		CreateStorageIfMissing: true,
		ObjCacheItemsCount:     DefaultObjCacheItemsCount,
	}
}

type namespaceDef struct {
	Name    string         `json:"name"`
	Storage storageOptions `json:"storage"`
	Cache   cacheOptions   `json:"cache"`
}

type storageOptions struct {
	Enabled         bool `json:"enabled"`
	DropOnFileError bool `json:"drop_on_file_format_error"`
	CreateIfMissing bool `json:"create_if_missing"`
}

type cacheOptions struct {
	Disabled   bool  `json:"disable_obj_cache"`
	ItemsCount int64 `json:"items_count"`
}

// NamespaceDef renders the namespace definition document sent to the server
// when opening namespace name.
func (o NamespaceOptions) NamespaceDef(name string) []byte {
	raw, err := json.Marshal(namespaceDef{
		Name: name,
		Storage: storageOptions{
			Enabled:         o.EnableStorage,
			DropOnFileError: o.DropOnFileFormatError,
			CreateIfMissing: o.CreateStorageIfMissing,
		},
		Cache: cacheOptions{
			Disabled:   o.DisableObjCache,
			ItemsCount: o.ObjCacheItemsCount,
		},
	})
	if err != nil {
		panic(err)
	}
	return raw
}
