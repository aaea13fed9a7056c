/*
Package rxdb is a client driver for a remote document store.

We implement:

1. Queries, built fluently and compiled straight into the server's binary
command stream (see Query).

2. Items, typed Go structs exchanged with the server in CJSON, a compact
tagged binary format (see package cjson).

3. Result iteration, pulling further pages from the server on demand (see
Iterator).

The network side lives behind binding.Binding; this package never opens
connections itself.

# Technical Details

**Payload types.**
The server assigns every field name of a namespace a small integer tag, and
describes the mapping in a payload type (cjson.PayloadType). The client keeps
the newest payload type per namespace and replaces it only with a strictly
newer version. Replacement is copy-on-write, so readers never lock.

**Tag allocation.**
When an item has fields the cached payload type does not know, the encoder
assigns them fresh tags numbered after the known ones and lists the new names
in a header in front of the item. The server confirms them by sending back a
newer payload type.

**State tokens.**
Every query and modification carries the state token of the payload type the
client used. If the server decides that the client is behind, it fails the call
with binding.SchemaStaleError carrying fresh payload types; we install them and
return the error, and the caller retries.

**Schema store.**
With Options.SchemaStorePath set, payload types are also persisted in a Bolt
file, so a restarted client starts with a warm cache.

## Query stream

A query is the namespace name followed by opcodes with their arguments, all
integers as uvarints. Executing a select appends an end marker, then each
joined query as its join kind, its own stream and an end marker. Delete and
update queries send the stream as is.

Each condition is combined with the preceding ones by the pending operator,
AND unless Or or Not was called right before; the operator resets after use.

**Values** in conditions are a kind followed by the value:

	null    kind 4
	bool    kind 3, uvarint
	int     kind 8, zig-zag varint (int64 and wider unsigned use kind 0)
	double  kind 1, 8 bytes little-endian
	float   kind 13, 4 bytes little-endian
	string  kind 2, uvarint length + bytes
	uuid    kind 12, 16 raw bytes
	tuple   kind 11, uvarint count + values

## Item format

See package cjson.

# Struct Tags

	`json:"name"`        wire name
	`json:"-"`, `rx:"-"` transient field
	`rx:"uuid"`          string field carried as a UUID
	`rx:"enum=string"`   Enum carried by name
*/
package rxdb
