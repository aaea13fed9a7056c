package cjson

// TagMatcher maps field names to tags while encoding one item. Names unknown
// to the payload type get fresh tags numbered after the last known one. The
// payload type itself is never modified; the allocations live only as long as
// the matcher.
type TagMatcher struct {
	pt      *PayloadType
	base    int
	newTags []string
	newIdx  map[string]int
}

// NewTagMatcher returns a matcher seeded from pt, which may be nil.
func NewTagMatcher(pt *PayloadType) *TagMatcher {
	return &TagMatcher{pt: pt, base: pt.TagCount()}
}

func (m *TagMatcher) PayloadType() *PayloadType {
	return m.pt
}

// Tag returns the tag for name, allocating one if needed. The empty name maps
// to tag 0. Only 4095 tags fit into the format.
func (m *TagMatcher) Tag(name string) (int, error) {
	if name == "" {
		return 0, nil
	}
	if tag := m.pt.NameToTag(name); tag != 0 {
		return tag, nil
	}
	if i, ok := m.newIdx[name]; ok {
		return m.base + i + 1, nil
	}
	tag := m.base + len(m.newTags) + 1
	if tag > tagNameMask {
		return 0, ErrTagSpaceExhausted
	}
	if m.newIdx == nil {
		m.newIdx = make(map[string]int)
	}
	m.newIdx[name] = len(m.newTags)
	m.newTags = append(m.newTags, name)
	return tag, nil
}

// Base is the number of tags known to the underlying payload type; allocated
// tags start at Base()+1.
func (m *TagMatcher) Base() int {
	return m.base
}

// NewTags returns the names allocated by this matcher, in tag order.
func (m *TagMatcher) NewTags() []string {
	return m.newTags
}

func (m *TagMatcher) Updated() bool {
	return len(m.newTags) > 0
}
