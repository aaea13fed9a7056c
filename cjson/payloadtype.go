package cjson

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

const tagNameMask = (1 << 12) - 1

// PayloadType describes a namespace's known field names and the tag assigned
// to each of them. Tag i+1 names Tags[i]; tag 0 is the empty name.
//
// A PayloadType is immutable once built by NewPayloadType.
type PayloadType struct {
	NamespaceID      int64          `msgpack:"nsid"`
	NamespaceName    string         `msgpack:"ns"`
	Version          int64          `msgpack:"v"`
	StateToken       int64          `msgpack:"st"`
	PStringHdrOffset int64          `msgpack:"psh,omitempty"`
	Tags             []string       `msgpack:"t"`
	Fields           []PayloadField `msgpack:"f,omitempty"`

	names map[string]int `msgpack:"-"`
}

type PayloadField struct {
	Type      int64    `msgpack:"t"`
	Name      string   `msgpack:"n"`
	Offset    int64    `msgpack:"o"`
	Size      int64    `msgpack:"s"`
	IsArray   bool     `msgpack:"a,omitempty"`
	JSONPaths []string `msgpack:"jp,omitempty"`
}

func NewPayloadType(nsID int64, nsName string, version, stateToken, pStringHdrOffset int64, tags []string, fields []PayloadField) *PayloadType {
	pt := &PayloadType{
		NamespaceID:      nsID,
		NamespaceName:    nsName,
		Version:          version,
		StateToken:       stateToken,
		PStringHdrOffset: pStringHdrOffset,
		Tags:             tags,
		Fields:           fields,
	}
	pt.buildNames()
	return pt
}

// Init builds the name index of a PayloadType that was populated field by
// field (for example by a decoder). Must be called before the value is shared.
func (pt *PayloadType) Init() *PayloadType {
	pt.buildNames()
	return pt
}

func (pt *PayloadType) buildNames() {
	pt.names = make(map[string]int, len(pt.Tags))
	for i, name := range pt.Tags {
		if _, dup := pt.names[name]; dup {
			panic(fmt.Errorf("cjson: duplicate tag name %q in payload type of %s", name, pt.NamespaceName))
		}
		pt.names[name] = i
	}
}

// NameToTag returns the tag of name, or 0 if the name is not known.
func (pt *PayloadType) NameToTag(name string) int {
	if pt == nil {
		return 0
	}
	if pt.names == nil {
		panic("cjson: PayloadType used before Init")
	}
	i, ok := pt.names[name]
	if !ok {
		return 0
	}
	return i + 1
}

// TagToName returns the name of tag. Only the low 12 bits of tag are
// considered, so a raw ctag name part can be passed as is.
func (pt *PayloadType) TagToName(tag int) (string, error) {
	tag &= tagNameMask
	if tag == 0 {
		return "", nil
	}
	if pt == nil || tag-1 >= len(pt.Tags) {
		return "", &UnknownTagError{Tag: tag, Namespace: pt.namespace()}
	}
	return pt.Tags[tag-1], nil
}

func (pt *PayloadType) TagCount() int {
	if pt == nil {
		return 0
	}
	return len(pt.Tags)
}

// IsNewerThan reports whether pt should replace old. Any payload type is newer
// than a nil one.
func (pt *PayloadType) IsNewerThan(old *PayloadType) bool {
	return old == nil || pt.Version > old.Version
}

// Fingerprint hashes the identity and tag table; two payload types with equal
// fingerprints encode items identically.
func (pt *PayloadType) Fingerprint() uint64 {
	if pt == nil {
		return 0
	}
	h := xxhash.New()
	fmt.Fprintf(h, "%d|%s|%d|%d|", pt.NamespaceID, pt.NamespaceName, pt.Version, pt.StateToken)
	for _, name := range pt.Tags {
		_, _ = h.WriteString(name)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

func (pt *PayloadType) namespace() string {
	if pt == nil {
		return ""
	}
	return pt.NamespaceName
}

func (pt *PayloadType) String() string {
	if pt == nil {
		return "<no payload type>"
	}
	return fmt.Sprintf("%s v%d st%d (%d tags)", pt.NamespaceName, pt.Version, pt.StateToken, len(pt.Tags))
}
