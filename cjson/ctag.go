package cjson

// Tag types of the binary format.
const (
	TagVarint = 0
	TagDouble = 1
	TagString = 2
	TagBool   = 3
	TagNull   = 4
	TagArray  = 5
	TagObject = 6
	TagEnd    = 7
	TagUUID   = 8
	TagFloat  = 9
)

var tagTypeNames = [...]string{"varint", "double", "string", "bool", "null", "array", "object", "end", "uuid", "float"}

// ctag layout: type:3 name:12 field:10 typeHigh:1
type ctag uint64

const (
	ctagTypeBits  = 3
	ctagNameBits  = 12
	ctagFieldBits = 10

	ctagTypeMask   = (1 << ctagTypeBits) - 1
	ctagFieldShift = ctagTypeBits + ctagNameBits
	ctagFieldMask  = (1 << ctagFieldBits) - 1
	ctagHighShift  = ctagTypeBits + ctagNameBits + ctagFieldBits
)

func mkctag(typ, name int) ctag {
	return ctag(typ&ctagTypeMask) | ctag(name&tagNameMask)<<ctagTypeBits | ctag(typ>>ctagTypeBits)<<ctagHighShift
}

func (c ctag) Type() int {
	return int(c&ctagTypeMask) | int((c>>ctagHighShift)&1)<<ctagTypeBits
}

func (c ctag) Name() int {
	return int(c>>ctagTypeBits) & tagNameMask
}

func (c ctag) Field() int {
	return int(c>>ctagFieldShift) & ctagFieldMask
}

func tagTypeName(typ int) string {
	if typ >= 0 && typ < len(tagTypeNames) {
		return tagTypeNames[typ]
	}
	return "?"
}

// carraytag layout: count:24 type:8
const (
	carrayCountMask = (1 << 24) - 1
	maxArrayLen     = carrayCountMask
)

func mkcarraytag(count, typ int) uint32 {
	return uint32(count&carrayCountMask) | uint32(typ)<<24
}

func carraytagCount(v uint32) int { return int(v & carrayCountMask) }
func carraytagType(v uint32) int  { return int(v >> 24) }
