package rxdb

import (
	"sync"
	"sync/atomic"

	"github.com/andreyvit/rxdb/cjson"
)

// schemaCache holds the live payload type of each namespace. Readers take a
// snapshot with load; install replaces it only with a strictly newer version,
// so the cached version per namespace never goes down.
type schemaCache struct {
	slots sync.Map // namespace name -> *atomic.Pointer[cjson.PayloadType]
}

func (c *schemaCache) slot(ns string) *atomic.Pointer[cjson.PayloadType] {
	if v, ok := c.slots.Load(ns); ok {
		return v.(*atomic.Pointer[cjson.PayloadType])
	}
	v, _ := c.slots.LoadOrStore(ns, new(atomic.Pointer[cjson.PayloadType]))
	return v.(*atomic.Pointer[cjson.PayloadType])
}

func (c *schemaCache) load(ns string) *cjson.PayloadType {
	if v, ok := c.slots.Load(ns); ok {
		return v.(*atomic.Pointer[cjson.PayloadType]).Load()
	}
	return nil
}

// install returns the replaced payload type and whether pt was installed.
func (c *schemaCache) install(pt *cjson.PayloadType) (*cjson.PayloadType, bool) {
	p := c.slot(pt.NamespaceName)
	for {
		old := p.Load()
		if !pt.IsNewerThan(old) {
			return old, false
		}
		if p.CompareAndSwap(old, pt) {
			return old, true
		}
	}
}

func (c *schemaCache) stateToken(ns string) int64 {
	if pt := c.load(ns); pt != nil {
		return pt.StateToken
	}
	return 0
}
