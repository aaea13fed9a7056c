package rxdb

import "sync/atomic"

// Stats is a snapshot of a DB's counters.
type Stats struct {
	Selects        uint64
	PageFetches    uint64
	CursorCloses   uint64
	Modifies       uint64
	DeleteQueries  uint64
	UpdateQueries  uint64
	ItemsEncoded   uint64
	ItemsDecoded   uint64
	SchemaInstalls uint64
	StaleSchemas   uint64
}

type counters struct {
	selects        atomic.Uint64
	pageFetches    atomic.Uint64
	cursorCloses   atomic.Uint64
	modifies       atomic.Uint64
	deleteQueries  atomic.Uint64
	updateQueries  atomic.Uint64
	itemsEncoded   atomic.Uint64
	itemsDecoded   atomic.Uint64
	schemaInstalls atomic.Uint64
	staleSchemas   atomic.Uint64
}

func (db *DB) Stats() Stats {
	c := &db.counters
	return Stats{
		Selects:        c.selects.Load(),
		PageFetches:    c.pageFetches.Load(),
		CursorCloses:   c.cursorCloses.Load(),
		Modifies:       c.modifies.Load(),
		DeleteQueries:  c.deleteQueries.Load(),
		UpdateQueries:  c.updateQueries.Load(),
		ItemsEncoded:   c.itemsEncoded.Load(),
		ItemsDecoded:   c.itemsDecoded.Load(),
		SchemaInstalls: c.schemaInstalls.Load(),
		StaleSchemas:   c.staleSchemas.Load(),
	}
}
