package rxdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/andreyvit/rxdb/binding"
	"github.com/andreyvit/rxdb/cjson"
)

const DefaultFetchCount = 100

type DB struct {
	binding    binding.Binding
	logger     *slog.Logger
	verbose    bool
	fetchCount int
	codec      itemCodec
	schemas    schemaCache
	store      *schemaStore

	counters counters
}

type Options struct {
	Logger *slog.Logger

	// DefaultFetchCount is the page size of new queries. Zero means
	// DefaultFetchCount; negative means everything in one page.
	DefaultFetchCount int

	// SchemaStorePath, if set, names a Bolt file that persists payload types
	// across restarts.
	SchemaStorePath string

	IsTesting bool

	FieldModels FieldModelProvider

	// Verbose logs every compiled query and encoded item at Debug level.
	Verbose bool
}

func New(b binding.Binding, opt Options) (*DB, error) {
	db := &DB{
		binding:    b,
		logger:     opt.Logger,
		verbose:    opt.Verbose,
		fetchCount: opt.DefaultFetchCount,
		codec:      itemCodec{models: opt.FieldModels},
	}
	if db.logger == nil {
		db.logger = slog.Default()
	}
	if db.fetchCount == 0 {
		db.fetchCount = DefaultFetchCount
	}
	if db.codec.models == nil {
		db.codec.models = ReflectFieldModels{}
	}

	if opt.SchemaStorePath != "" {
		store, err := openSchemaStore(opt.SchemaStorePath, opt.IsTesting)
		if err != nil {
			return nil, err
		}
		pts, err := store.loadAll()
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("schema store: %w", err)
		}
		for _, pt := range pts {
			db.schemas.install(pt)
		}
		db.store = store
		db.logger.LogAttrs(context.Background(), slog.LevelDebug, "rxdb: loaded payload types", slog.String("path", opt.SchemaStorePath), slog.Int("count", len(pts)))
	}
	return db, nil
}

func (db *DB) Close() error {
	if db.store == nil {
		return nil
	}
	err := db.store.Close()
	db.store = nil
	return err
}

func (db *DB) Binding() binding.Binding {
	return db.binding
}

// PayloadType returns the cached payload type of namespace ns, or nil.
func (db *DB) PayloadType(ns string) *cjson.PayloadType {
	return db.schemas.load(ns)
}

// installPayloadTypes caches the newest payload type of each namespace in
// pts if it is newer than the cached one.
func (db *DB) installPayloadTypes(ctx context.Context, pts []*cjson.PayloadType) {
	for i, pt := range pts {
		newest := pt
		for _, other := range pts[i+1:] {
			if other.NamespaceName == pt.NamespaceName && other.IsNewerThan(newest) {
				newest = other
			}
		}
		if newest != pt {
			continue
		}
		old, ok := db.schemas.install(pt)
		if !ok {
			continue
		}
		db.counters.schemaInstalls.Add(1)
		db.logger.LogAttrs(ctx, slog.LevelInfo, "rxdb: payload type replaced",
			slog.String("ns", pt.NamespaceName),
			slog.String("old", old.String()),
			slog.Int64("version", pt.Version),
			slog.Int64("state_token", pt.StateToken),
			slog.Int("tags", pt.TagCount()),
			slog.Uint64("fingerprint", pt.Fingerprint()))

		if db.store != nil && (old == nil || old.Fingerprint() != pt.Fingerprint()) {
			if _, err := db.store.save(pt); err != nil {
				db.logger.LogAttrs(ctx, slog.LevelWarn, "rxdb: failed to persist payload type", slog.String("ns", pt.NamespaceName), slog.Any("err", err))
			}
		}
	}
}

// handleStale installs the payload types carried by a stale-schema error.
func (db *DB) handleStale(ctx context.Context, err error) {
	var stale *binding.SchemaStaleError
	if errors.As(err, &stale) {
		db.counters.staleSchemas.Add(1)
		db.installPayloadTypes(ctx, stale.PayloadTypes)
	}
}
