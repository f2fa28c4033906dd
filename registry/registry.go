package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/reportgraph/agent"
	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/graph"
	"github.com/hupe1980/reportgraph/logging"
)

// Constructor builds a node handler from node params.
type Constructor func(params map[string]any) (core.Handler, error)

// Metadata describes a static node type.
type Metadata struct {
	Capabilities []string       `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Description  string         `json:"description,omitempty" yaml:"description,omitempty"`
	Extra        map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

func (m Metadata) clone() Metadata {
	return Metadata{
		Capabilities: append([]string(nil), m.Capabilities...),
		Description:  m.Description,
		Extra:        core.CloneMap(m.Extra),
	}
}

// Entry is a resolved registry entry: a static node type or a dynamic agent.
type Entry struct {
	ID       string
	Dynamic  bool
	Metadata Metadata
	// Agent is set for dynamic entries.
	Agent *agent.DynamicAgent

	constructor Constructor
}

// Stats summarizes the registry contents.
type Stats struct {
	TotalAgents     int      `json:"total_agents"`
	StaticAgents    int      `json:"static_agents"`
	DynamicAgents   int      `json:"dynamic_agents"`
	TotalCapability int      `json:"total_capabilities"`
	Capabilities    []string `json:"capabilities"`
	AgentTypes      []string `json:"agent_types"`
	DynamicAgentIDs []string `json:"dynamic_agent_ids"`
}

// Options configures a Registry.
type Options struct {
	Logger logging.Logger
	// Now is used to derive dynamic agent ids.
	Now func() time.Time
}

type staticEntry struct {
	constructor Constructor
	metadata    Metadata
}

// Registry maps node types and dynamic agent ids to handler constructors and
// keeps an inverted capability index. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	static  map[string]*staticEntry
	dynamic map[string]*agent.DynamicAgent
	index   map[string]map[string]struct{}
	logger  logging.Logger
	now     func() time.Time
}

var _ graph.Resolver = (*Registry)(nil)

// New creates an empty registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Now:    time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		static:  make(map[string]*staticEntry),
		dynamic: make(map[string]*agent.DynamicAgent),
		index:   make(map[string]map[string]struct{}),
		logger:  logging.OrNoOp(opts.Logger),
		now:     opts.Now,
	}
}

// RegisterNode registers a static node type. Registering an existing type
// replaces it and reindexes its capabilities.
func (r *Registry) RegisterNode(typ string, ctor Constructor, md Metadata) error {
	if typ == "" {
		return errors.New("registry: node type is empty")
	}

	if ctor == nil {
		return fmt.Errorf("registry: node type %q has no constructor", typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.dynamic[typ]; ok {
		return fmt.Errorf("registry: %q is already a dynamic agent id", typ)
	}

	if old, ok := r.static[typ]; ok {
		r.unindex(typ, old.metadata.Capabilities)
	}

	md = md.clone()
	r.static[typ] = &staticEntry{constructor: ctor, metadata: md}
	r.reindex(typ, md.Capabilities)

	r.logger.Debug("registry.node.registered", "type", typ, "capabilities", md.Capabilities)

	return nil
}

// RegisterDynamicAgent creates a dynamic agent from cfg and registers it
// under a generated id of the form dynamic_<name>_<unixnano>.
func (r *Registry) RegisterDynamicAgent(cfg agent.Config) (string, error) {
	a, err := agent.New(cfg, func(o *agent.Options) { o.Logger = r.logger })
	if err != nil {
		return "", fmt.Errorf("registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.addDynamic(a), nil
}

func (r *Registry) addDynamic(a *agent.DynamicAgent) string {
	ts := r.now().UnixNano()

	id := fmt.Sprintf("dynamic_%s_%d", a.Name(), ts)
	for r.exists(id) {
		ts++
		id = fmt.Sprintf("dynamic_%s_%d", a.Name(), ts)
	}

	r.dynamic[id] = a
	r.reindex(id, a.CapabilityTypes())

	r.logger.Info("registry.agent.registered", "id", id, "capabilities", a.CapabilityTypes())

	return id
}

func (r *Registry) exists(id string) bool {
	_, s := r.static[id]
	_, d := r.dynamic[id]

	return s || d
}

// CreateOptimizedAgent registers a dynamic agent built from the report
// profile of reportType and returns its id.
func (r *Registry) CreateOptimizedAgent(reportType, userID string) (string, error) {
	cfg, dedicated := agent.Profile(reportType, userID)

	a, err := agent.New(cfg, func(o *agent.Options) { o.Logger = r.logger })
	if err != nil {
		return "", fmt.Errorf("registry: %w", err)
	}

	if dedicated {
		if err := a.OptimizeForReportType(reportType); err != nil {
			return "", fmt.Errorf("registry: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.addDynamic(a)

	r.logger.Info("registry.agent.optimized", "id", id, "report_type", reportType, "user_id", userID)

	return id, nil
}

// Resolve returns the entry registered under a node type or dynamic agent id.
func (r *Registry) Resolve(typeOrID string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.static[typeOrID]; ok {
		return Entry{ID: typeOrID, Metadata: s.metadata.clone(), constructor: s.constructor}, nil
	}

	if a, ok := r.dynamic[typeOrID]; ok {
		return Entry{
			ID:       typeOrID,
			Dynamic:  true,
			Metadata: Metadata{Capabilities: a.CapabilityTypes(), Description: a.Description()},
			Agent:    a,
		}, nil
	}

	return Entry{}, &core.NotFoundError{Kind: "node type", Name: typeOrID}
}

// Build resolves typeOrID and constructs its handler. Dynamic agents are
// exposed as Agent nodes.
func (r *Registry) Build(typeOrID string, params map[string]any) (core.Handler, error) {
	e, err := r.Resolve(typeOrID)
	if err != nil {
		return nil, err
	}

	if e.Dynamic {
		return e.Agent.Handler(), nil
	}

	h, err := e.constructor(core.CloneMap(params))
	if err != nil {
		return nil, fmt.Errorf("build node type %q: %w", typeOrID, err)
	}

	if h == nil {
		return nil, fmt.Errorf("build node type %q: constructor returned no handler", typeOrID)
	}

	return h, nil
}

// DynamicAgent returns a registered dynamic agent.
func (r *Registry) DynamicAgent(id string) (*agent.DynamicAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.dynamic[id]
	if !ok {
		return nil, &core.NotFoundError{Kind: "dynamic agent", Name: id}
	}

	return a, nil
}

// Has reports whether typeOrID is registered.
func (r *Registry) Has(typeOrID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.exists(typeOrID)
}

// FindByCapability returns the sorted ids that declare capability.
func (r *Registry) FindByCapability(capability string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedSet(r.index[capability])
}

// FindByCapabilities returns the sorted ids that declare all capabilities.
func (r *Registry) FindByCapabilities(capabilities ...string) []string {
	if len(capabilities) == 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string

	for id := range r.index[capabilities[0]] {
		all := true

		for _, c := range capabilities[1:] {
			if _, ok := r.index[c][id]; !ok {
				all = false
				break
			}
		}

		if all {
			out = append(out, id)
		}
	}

	sort.Strings(out)

	return out
}

// RemoveNode removes a static node type from the registry and from every
// capability bucket.
func (r *Registry) RemoveNode(typ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.static[typ]; !ok {
		return &core.NotFoundError{Kind: "node type", Name: typ}
	}

	delete(r.static, typ)
	r.unindexAll(typ)

	r.logger.Info("registry.node.removed", "type", typ)

	return nil
}

// RemoveDynamicAgent removes a dynamic agent and its index entries.
func (r *Registry) RemoveDynamicAgent(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.dynamic[id]; !ok {
		return &core.NotFoundError{Kind: "dynamic agent", Name: id}
	}

	delete(r.dynamic, id)
	r.unindexAll(id)

	r.logger.Info("registry.agent.removed", "id", id)

	return nil
}

// UpdateMetadata updates the metadata of a static type. A non-empty
// description replaces the old one, non-nil capabilities replace and reindex
// the old ones, and Extra values are merged.
func (r *Registry) UpdateMetadata(typ string, md Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.static[typ]
	if !ok {
		return &core.NotFoundError{Kind: "node type", Name: typ}
	}

	if md.Description != "" {
		s.metadata.Description = md.Description
	}

	if md.Capabilities != nil {
		r.unindex(typ, s.metadata.Capabilities)
		s.metadata.Capabilities = append([]string(nil), md.Capabilities...)
		r.reindex(typ, s.metadata.Capabilities)
	}

	if len(md.Extra) > 0 {
		if s.metadata.Extra == nil {
			s.metadata.Extra = make(map[string]any, len(md.Extra))
		}

		for k, v := range md.Extra {
			s.metadata.Extra[k] = v
		}
	}

	return nil
}

// ReindexAgent refreshes the index entries of a dynamic agent after its
// capabilities changed.
func (r *Registry) ReindexAgent(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.dynamic[id]
	if !ok {
		return &core.NotFoundError{Kind: "dynamic agent", Name: id}
	}

	r.unindexAll(id)
	r.reindex(id, a.CapabilityTypes())

	return nil
}

// Capabilities returns every indexed capability, sorted.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.index))
	for c := range r.index {
		out = append(out, c)
	}

	sort.Strings(out)

	return out
}

// Types returns the static node types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.static)
}

// DynamicAgentIDs returns the dynamic agent ids, sorted.
func (r *Registry) DynamicAgentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.dynamic)
}

// Stats summarizes the registry.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := sortedKeys(r.index)

	return Stats{
		TotalAgents:     len(r.static) + len(r.dynamic),
		StaticAgents:    len(r.static),
		DynamicAgents:   len(r.dynamic),
		TotalCapability: len(caps),
		Capabilities:    caps,
		AgentTypes:      sortedKeys(r.static),
		DynamicAgentIDs: sortedKeys(r.dynamic),
	}
}

// Validate reports inconsistencies: static types that share a name with a
// dynamic agent, declared capabilities missing from the index and index
// entries pointing at unknown ids. An empty result means the registry is
// consistent.
func (r *Registry) Validate() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var issues []string

	var dupes []string
	for _, a := range r.dynamic {
		if _, ok := r.static[a.Name()]; ok {
			dupes = append(dupes, a.Name())
		}
	}

	if len(dupes) > 0 {
		sort.Strings(dupes)
		issues = append(issues, fmt.Sprintf("duplicate agent types: %v", dupes))
	}

	declared := make(map[string][]string)
	for typ, s := range r.static {
		for _, c := range s.metadata.Capabilities {
			declared[typ] = append(declared[typ], c)
		}
	}

	for id, a := range r.dynamic {
		declared[id] = a.CapabilityTypes()
	}

	orphaned := make(map[string]struct{})
	for id, caps := range declared {
		for _, c := range caps {
			if _, ok := r.index[c][id]; !ok {
				orphaned[c] = struct{}{}
			}
		}
	}

	if len(orphaned) > 0 {
		issues = append(issues, fmt.Sprintf("orphaned capabilities: %v", sortedSet(orphaned)))
	}

	var stale []string
	for c, ids := range r.index {
		for id := range ids {
			if !r.exists(id) {
				stale = append(stale, c+"/"+id)
			}
		}
	}

	if len(stale) > 0 {
		sort.Strings(stale)
		issues = append(issues, fmt.Sprintf("stale index entries: %v", stale))
	}

	return issues
}

// Cleanup removes every dynamic agent and returns how many were removed.
func (r *Registry) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.dynamic)
	for id := range r.dynamic {
		r.unindexAll(id)
	}

	r.dynamic = make(map[string]*agent.DynamicAgent)

	r.logger.Info("registry.cleanup", "removed", n)

	return n
}

func (r *Registry) reindex(id string, capabilities []string) {
	for _, c := range capabilities {
		if c == "" {
			continue
		}

		bucket, ok := r.index[c]
		if !ok {
			bucket = make(map[string]struct{})
			r.index[c] = bucket
		}

		bucket[id] = struct{}{}
	}
}

func (r *Registry) unindex(id string, capabilities []string) {
	for _, c := range capabilities {
		bucket, ok := r.index[c]
		if !ok {
			continue
		}

		delete(bucket, id)

		if len(bucket) == 0 {
			delete(r.index, c)
		}
	}
}

// unindexAll removes id from every bucket, so entries survive capability
// changes made after registration.
func (r *Registry) unindexAll(id string) {
	for c, bucket := range r.index {
		delete(bucket, id)

		if len(bucket) == 0 {
			delete(r.index, c)
		}
	}
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}
