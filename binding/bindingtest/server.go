// Package bindingtest provides an in-memory binding.Binding for tests.
//
// Server keeps decoded items per namespace, confirms tags that clients
// allocate, serves select results page by page and records every call. It
// does not evaluate queries: a select returns all items of the namespace
// named at the start of the query stream.
package bindingtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/andreyvit/rxdb/binding"
	"github.com/andreyvit/rxdb/cjson"
	"github.com/andreyvit/rxdb/cproto"
	"github.com/vmihailenco/msgpack/v5"
)

// KeyField names the field that identifies items for ModifyItem.
const KeyField = "id"

type Call struct {
	Method      string
	Namespace   string
	Data        []byte
	FetchCount  int
	Handle      int64
	Mode        int
	StateTokens []int64
}

type Server struct {
	// Format is the item format of select results.
	Format int

	// StrictStateTokens makes ModifyItem reject items encoded against an
	// outdated payload type with *binding.SchemaStaleError.
	StrictStateTokens bool

	// Affected is returned by DeleteQuery and UpdateQuery.
	Affected int

	mu         sync.Mutex
	namespaces map[string]*namespace
	cursors    map[int64]*cursor
	lastHandle int64
	lastNSID   int64
	calls      []Call
	failNext   error
	staleNext  bool
	closed     int
}

type namespace struct {
	name  string
	pt    *cjson.PayloadType
	items []cjson.Object
	opts  binding.NamespaceOptions
}

type cursor struct {
	handle int64
	ns     string
	format int
	items  [][]byte
	pos    int
}

var _ binding.Binding = (*Server)(nil)

func New() *Server {
	return &Server{
		Format:     cproto.FormatCJSON,
		namespaces: make(map[string]*namespace),
		cursors:    make(map[int64]*cursor),
	}
}

// Put stores items directly, confirming any new field names.
func (s *Server) Put(nsName string, items ...cjson.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.ensureNamespace(nsName)
	for _, item := range items {
		ns.confirm(collectNames(nil, item))
		ns.items = append(ns.items, item)
	}
}

func (s *Server) PayloadType(nsName string) *cjson.PayloadType {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns := s.namespaces[nsName]; ns != nil {
		return ns.pt
	}
	return nil
}

func (s *Server) Items(nsName string) []cjson.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns := s.namespaces[nsName]; ns != nil {
		return slices.Clone(ns.items)
	}
	return nil
}

func (s *Server) NamespaceOptions(nsName string) binding.NamespaceOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns := s.namespaces[nsName]; ns != nil {
		return ns.opts
	}
	return binding.NamespaceOptions{}
}

func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

func (s *Server) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// LastCall returns the most recent call of method.
func (s *Server) LastCall(method string) (Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].Method == method {
			return s.calls[i], true
		}
	}
	return Call{}, false
}

// FailNext makes the next call return err.
func (s *Server) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// StaleNext makes the next ModifyItem or SelectQuery return
// *binding.SchemaStaleError carrying the current payload type.
func (s *Server) StaleNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staleNext = true
}

func (s *Server) OpenCursors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cursors)
}

func (s *Server) ClosedCursors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) record(c Call) error {
	s.calls = append(s.calls, c)
	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	return nil
}

func (s *Server) ensureNamespace(name string) *namespace {
	ns := s.namespaces[name]
	if ns == nil {
		s.lastNSID++
		ns = &namespace{
			name: name,
			pt:   cjson.NewPayloadType(s.lastNSID, name, 1, 1, 0, nil, nil),
			opts: binding.DefaultNamespaceOptions(),
		}
		s.namespaces[name] = ns
	}
	return ns
}

func (s *Server) namespace(name string) (*namespace, error) {
	ns := s.namespaces[name]
	if ns == nil {
		return nil, fmt.Errorf("namespace %q is not open", name)
	}
	return ns, nil
}

func (s *Server) stale(ns *namespace) error {
	return &binding.SchemaStaleError{Namespace: ns.name, PayloadTypes: []*cjson.PayloadType{ns.pt}}
}

// confirm adds unknown names to the payload type, bumping its version and
// state token.
func (ns *namespace) confirm(names []string) bool {
	var added []string
	for _, name := range names {
		if name != "" && ns.pt.NameToTag(name) == 0 && !slices.Contains(added, name) {
			added = append(added, name)
		}
	}
	if len(added) == 0 {
		return false
	}
	old := ns.pt
	tags := append(slices.Clone(old.Tags), added...)
	ns.pt = cjson.NewPayloadType(old.NamespaceID, old.NamespaceName, old.Version+1, old.StateToken+1, old.PStringHdrOffset, tags, old.Fields)
	return true
}

func (ns *namespace) indexOf(key cjson.Value) int {
	if key == nil {
		return -1
	}
	k := cjson.Dump(key)
	return slices.IndexFunc(ns.items, func(item cjson.Object) bool {
		v := item.Get(KeyField)
		return v != nil && cjson.Dump(v) == k
	})
}

func (s *Server) OpenNamespace(ctx context.Context, name string, opts binding.NamespaceOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Method: "OpenNamespace", Namespace: name, Data: opts.NamespaceDef(name)}); err != nil {
		return err
	}
	s.ensureNamespace(name).opts = opts
	return nil
}

func (s *Server) ModifyItem(ctx context.Context, nsName string, format int, data []byte, mode int, stateToken int64) (*binding.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Method: "ModifyItem", Namespace: nsName, Data: bytes.Clone(data), Mode: mode, StateTokens: []int64{stateToken}}); err != nil {
		return nil, err
	}
	ns, err := s.namespace(nsName)
	if err != nil {
		return nil, err
	}
	if s.staleNext || (s.StrictStateTokens && stateToken != ns.pt.StateToken) {
		s.staleNext = false
		return nil, s.stale(ns)
	}
	if format != cproto.FormatCJSON {
		return nil, fmt.Errorf("format %d: %w", format, cjson.ErrUnsupportedType)
	}

	item, err := cjson.Decode(ns.pt, data)
	if err != nil {
		return nil, err
	}
	_, newNames, err := cjson.ItemTags(data)
	if err != nil {
		return nil, err
	}
	changed := ns.confirm(newNames)

	var affected int
	idx := ns.indexOf(item.Get(KeyField))
	switch mode {
	case cproto.ModeUpsert:
		if idx >= 0 {
			ns.items[idx] = item
		} else {
			ns.items = append(ns.items, item)
		}
		affected = 1
	case cproto.ModeInsert:
		if idx < 0 {
			ns.items = append(ns.items, item)
			affected = 1
		}
	case cproto.ModeUpdate:
		if idx >= 0 {
			ns.items[idx] = item
			affected = 1
		}
	case cproto.ModeDelete:
		if idx >= 0 {
			ns.items = slices.Delete(ns.items, idx, idx+1)
			affected = 1
		}
	default:
		return nil, fmt.Errorf("unknown modify mode %d", mode)
	}

	res := &binding.QueryResult{TotalCount: affected, Format: cproto.FormatCJSON}
	if changed {
		res.PayloadTypes = []*cjson.PayloadType{ns.pt}
	}
	return roundTrip(res)
}

func (s *Server) SelectQuery(ctx context.Context, data []byte, fetchCount int, stateTokens []int64) (*binding.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nsName, _ := cproto.NewReader(data).VString()
	if err := s.record(Call{Method: "SelectQuery", Namespace: nsName, Data: bytes.Clone(data), FetchCount: fetchCount, StateTokens: slices.Clone(stateTokens)}); err != nil {
		return nil, err
	}
	ns, err := s.namespace(nsName)
	if err != nil {
		return nil, err
	}
	if s.staleNext {
		s.staleNext = false
		return nil, s.stale(ns)
	}

	items := make([][]byte, 0, len(ns.items))
	for _, item := range ns.items {
		raw, err := s.encodeItem(ns.pt, item)
		if err != nil {
			return nil, err
		}
		items = append(items, raw)
	}

	c := &cursor{ns: nsName, format: s.Format, items: items}
	res := s.page(c, fetchCount)
	if len(stateTokens) == 0 || stateTokens[0] != ns.pt.StateToken {
		res.PayloadTypes = []*cjson.PayloadType{ns.pt}
	}
	return roundTrip(res)
}

func (s *Server) FetchResults(ctx context.Context, handle int64, fetchCount int) (*binding.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cursors[handle]
	var nsName string
	if c != nil {
		nsName = c.ns
	}
	if err := s.record(Call{Method: "FetchResults", Namespace: nsName, Handle: handle, FetchCount: fetchCount}); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w %d", binding.ErrUnknownHandle, handle)
	}
	return roundTrip(s.page(c, fetchCount))
}

func (s *Server) CloseResults(ctx context.Context, handle int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cursors[handle]
	var nsName string
	if c != nil {
		nsName = c.ns
	}
	if err := s.record(Call{Method: "CloseResults", Namespace: nsName, Handle: handle}); err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w %d", binding.ErrUnknownHandle, handle)
	}
	delete(s.cursors, handle)
	s.closed++
	return nil
}

func (s *Server) DeleteQuery(ctx context.Context, data []byte) (int, error) {
	return s.mutationQuery("DeleteQuery", data)
}

func (s *Server) UpdateQuery(ctx context.Context, data []byte) (int, error) {
	return s.mutationQuery("UpdateQuery", data)
}

func (s *Server) mutationQuery(method string, data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nsName, _ := cproto.NewReader(data).VString()
	if err := s.record(Call{Method: method, Namespace: nsName, Data: bytes.Clone(data)}); err != nil {
		return 0, err
	}
	if _, err := s.namespace(nsName); err != nil {
		return 0, err
	}
	return s.Affected, nil
}

// page takes the next fetchCount items off c. A cursor with items left is
// kept under its handle; an exhausted one is released.
func (s *Server) page(c *cursor, fetchCount int) *binding.QueryResult {
	end := len(c.items)
	if fetchCount > 0 && c.pos+fetchCount < end {
		end = c.pos + fetchCount
	}
	res := &binding.QueryResult{
		TotalCount: len(c.items),
		Format:     c.format,
		Items:      c.items[c.pos:end],
	}
	c.pos = end
	if c.pos < len(c.items) {
		if c.handle == 0 {
			s.lastHandle++
			c.handle = s.lastHandle
			s.cursors[c.handle] = c
		}
		res.Handle = c.handle
	} else if c.handle != 0 {
		delete(s.cursors, c.handle)
	}
	return res
}

func (s *Server) encodeItem(pt *cjson.PayloadType, item cjson.Object) ([]byte, error) {
	switch s.Format {
	case cproto.FormatCJSON:
		return cjson.Encode(item, cjson.NewTagMatcher(pt))
	case cproto.FormatJSON:
		return json.Marshal(native(item))
	case cproto.FormatMsgPack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetSortMapKeys(true)
		if err := enc.Encode(native(item)); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("format %d: %w", s.Format, cjson.ErrUnsupportedType)
	}
}

// roundTrip passes res through the reply envelope codec, the way a real
// transport would.
func roundTrip(res *binding.QueryResult) (*binding.QueryResult, error) {
	b := cproto.NewBuffer()
	binding.AppendQueryResult(b, res)
	return binding.ParseQueryResult(b.Bytes())
}

func native(v cjson.Value) any {
	switch v := v.(type) {
	case nil, cjson.Null:
		return nil
	case cjson.Bool:
		return bool(v)
	case cjson.Int:
		return int64(v)
	case cjson.Double:
		return float64(v)
	case cjson.String:
		return string(v)
	case cjson.UUID:
		return v.String()
	case cjson.Array:
		result := make([]any, len(v))
		for i, el := range v {
			result[i] = native(el)
		}
		return result
	case cjson.Object:
		result := make(map[string]any, len(v))
		for _, f := range v {
			result[f.Name] = native(f.Value)
		}
		return result
	default:
		panic(fmt.Errorf("unexpected value %T", v))
	}
}

func collectNames(names []string, v cjson.Value) []string {
	switch v := v.(type) {
	case cjson.Object:
		for _, f := range v {
			names = append(names, f.Name)
			names = collectNames(names, f.Value)
		}
	case cjson.Array:
		for _, el := range v {
			names = collectNames(names, el)
		}
	}
	return names
}
