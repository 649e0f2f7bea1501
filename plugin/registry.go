package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/log-store/log-ship/errors"
)

// Registry maps driver type names to factories and configured plugin names
// to constructed instances. Factories are registered once at startup by the
// driver packages; instances are created from the configuration and claimed
// by exactly one route each.
type Registry struct {
	mu sync.RWMutex

	sourceFactories    map[string]SourceFactory
	transformFactories map[string]TransformFactory
	sinkFactories      map[string]SinkFactory

	sources    map[string]*owned[Source]
	transforms map[string]*owned[Transform]
	sinks      map[string]*owned[Sink]
}

// owned tracks an instance and its claiming route
type owned[T any] struct {
	instance T
	claimed  string // route id, empty until claimed
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sourceFactories:    make(map[string]SourceFactory),
		transformFactories: make(map[string]TransformFactory),
		sinkFactories:      make(map[string]SinkFactory),
		sources:            make(map[string]*owned[Source]),
		transforms:         make(map[string]*owned[Transform]),
		sinks:              make(map[string]*owned[Sink]),
	}
}

// RegisterSourceType registers a source driver factory under its type name
func (r *Registry) RegisterSourceType(typeName string, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sourceFactories[typeName]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("source type %q is already registered", typeName),
			"Registry", "RegisterSourceType", "duplicate type check")
	}
	r.sourceFactories[typeName] = factory
	return nil
}

// RegisterTransformType registers a transform driver factory under its type name
func (r *Registry) RegisterTransformType(typeName string, factory TransformFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.transformFactories[typeName]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("transform type %q is already registered", typeName),
			"Registry", "RegisterTransformType", "duplicate type check")
	}
	r.transformFactories[typeName] = factory
	return nil
}

// RegisterSinkType registers a sink driver factory under its type name
func (r *Registry) RegisterSinkType(typeName string, factory SinkFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sinkFactories[typeName]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("sink type %q is already registered", typeName),
			"Registry", "RegisterSinkType", "duplicate type check")
	}
	r.sinkFactories[typeName] = factory
	return nil
}

// SourceTypes returns the registered source type names, sorted
func (r *Registry) SourceTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.sourceFactories)
}

// TransformTypes returns the registered transform type names, sorted
func (r *Registry) TransformTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.transformFactories)
}

// SinkTypes returns the registered sink type names, sorted
func (r *Registry) SinkTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.sinkFactories)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CreateSource constructs a source instance from a configuration entry and
// registers it under its configured name. Names are unique within a kind.
func (r *Registry) CreateSource(name, typeName string, args Args, deps Dependencies) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	factory, exists := r.sourceFactories[typeName]
	if !exists {
		return errors.WrapFatal(
			fmt.Errorf("no input plugin of type %q found", typeName),
			"Registry", "CreateSource", "factory lookup")
	}
	if _, exists := r.sources[name]; exists {
		return errors.WrapFatal(
			fmt.Errorf("input %q is declared twice", name),
			"Registry", "CreateSource", "duplicate name check")
	}

	instance, err := factory(name, args, deps)
	if err != nil {
		return errors.Wrap(err, "Registry", "CreateSource", fmt.Sprintf("constructing input %q", name))
	}

	r.sources[name] = &owned[Source]{instance: instance}
	return nil
}

// CreateTransform constructs a transform instance from a configuration entry
func (r *Registry) CreateTransform(name, typeName string, args Args, deps Dependencies) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	factory, exists := r.transformFactories[typeName]
	if !exists {
		return errors.WrapFatal(
			fmt.Errorf("no transform plugin of type %q found", typeName),
			"Registry", "CreateTransform", "factory lookup")
	}
	if _, exists := r.transforms[name]; exists {
		return errors.WrapFatal(
			fmt.Errorf("transform %q is declared twice", name),
			"Registry", "CreateTransform", "duplicate name check")
	}

	instance, err := factory(name, args, deps)
	if err != nil {
		return errors.Wrap(err, "Registry", "CreateTransform", fmt.Sprintf("constructing transform %q", name))
	}

	r.transforms[name] = &owned[Transform]{instance: instance}
	return nil
}

// CreateSink constructs a sink instance from a configuration entry
func (r *Registry) CreateSink(name, typeName string, args Args, deps Dependencies) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	factory, exists := r.sinkFactories[typeName]
	if !exists {
		return errors.WrapFatal(
			fmt.Errorf("no output plugin of type %q found", typeName),
			"Registry", "CreateSink", "factory lookup")
	}
	if _, exists := r.sinks[name]; exists {
		return errors.WrapFatal(
			fmt.Errorf("output %q is declared twice", name),
			"Registry", "CreateSink", "duplicate name check")
	}

	instance, err := factory(name, args, deps)
	if err != nil {
		return errors.Wrap(err, "Registry", "CreateSink", fmt.Sprintf("constructing output %q", name))
	}

	r.sinks[name] = &owned[Sink]{instance: instance}
	return nil
}

// ClaimSource hands the named source to a route. Each driver is owned by
// exactly one route; a second claim is a configuration error.
func (r *Registry) ClaimSource(routeID, name string) (Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, exists := r.sources[name]
	if !exists {
		return nil, errors.WrapFatal(
			fmt.Errorf("in route %q, the input %q was not found", routeID, name),
			"Registry", "ClaimSource", "instance lookup")
	}
	if o.claimed != "" {
		return nil, errors.WrapFatal(
			fmt.Errorf("input %q is already used by route %q", name, o.claimed),
			"Registry", "ClaimSource", "ownership check")
	}
	o.claimed = routeID
	return o.instance, nil
}

// ClaimTransform hands the named transform to a route
func (r *Registry) ClaimTransform(routeID, name string) (Transform, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, exists := r.transforms[name]
	if !exists {
		return nil, errors.WrapFatal(
			fmt.Errorf("in route %q, the transform %q was not found", routeID, name),
			"Registry", "ClaimTransform", "instance lookup")
	}
	if o.claimed != "" {
		return nil, errors.WrapFatal(
			fmt.Errorf("transform %q is already used by route %q", name, o.claimed),
			"Registry", "ClaimTransform", "ownership check")
	}
	o.claimed = routeID
	return o.instance, nil
}

// ClaimSink hands the named sink to a route
func (r *Registry) ClaimSink(routeID, name string) (Sink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, exists := r.sinks[name]
	if !exists {
		return nil, errors.WrapFatal(
			fmt.Errorf("in route %q, the output %q was not found", routeID, name),
			"Registry", "ClaimSink", "instance lookup")
	}
	if o.claimed != "" {
		return nil, errors.WrapFatal(
			fmt.Errorf("output %q is already used by route %q", name, o.claimed),
			"Registry", "ClaimSink", "ownership check")
	}
	o.claimed = routeID
	return o.instance, nil
}
