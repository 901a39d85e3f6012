// Package modelregistry maps model names to small integer ids and
// prototype instances, and implements CopyModel ("clone + parameter
// override", §9) via github.com/jinzhu/copier.
package modelregistry

import (
	"fmt"
	"reflect"

	"github.com/jinzhu/copier"

	"github.com/sarchlab/spikesim/statusdict"
)

// Model is the subset of neuron.Node/synapse.Synapse a prototype must
// satisfy to accept parameter overrides during CopyModel, kept minimal so
// this package never imports neuron or synapse (§9).
type Model interface {
	SetStatus(statusdict.Dict) error
}

// Registry assigns dense model ids to registered prototypes, and clones
// them (with overrides) to derive new models.
type Registry struct {
	names      []string
	byName     map[string]int
	prototypes []interface{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register assigns a fresh model id to prototype under name, returning
// KindNamingConflict if name is already registered — a recoverable, named
// error kind (§7), not a fatal kernel invariant.
func (r *Registry) Register(name string, prototype interface{}) (int, error) {
	if _, exists := r.byName[name]; exists {
		return 0, statusdict.New(statusdict.KindNamingConflict, "name", "model "+name+" already registered")
	}

	id := len(r.prototypes)
	r.names = append(r.names, name)
	r.prototypes = append(r.prototypes, prototype)
	r.byName[name] = id

	return id, nil
}

// ID returns the model id registered under name.
func (r *Registry) ID(name string) (int, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// Name returns the name registered for modelID.
func (r *Registry) Name(modelID int) string {
	return r.names[modelID]
}

// Prototype returns the prototype instance registered for modelID. Callers
// must not mutate the returned value; use CopyModel to derive a variant.
func (r *Registry) Prototype(modelID int) interface{} {
	return r.prototypes[modelID]
}

// CopyModel deep-copies the prototype registered under sourceID via
// copier.CopyWithOption, applies overrides through the clone's SetStatus,
// then registers the clone under newName and returns the new model id
// (§9 "clone + parameter override").
func (r *Registry) CopyModel(sourceID int, newName string, overrides statusdict.Dict) (int, error) {
	src := r.prototypes[sourceID]

	srcVal := reflect.ValueOf(src)
	if srcVal.Kind() != reflect.Ptr {
		return 0, fmt.Errorf("modelregistry: prototype for %q is not a pointer", r.names[sourceID])
	}

	dst := reflect.New(srcVal.Elem().Type()).Interface()

	if err := copier.CopyWithOption(dst, src, copier.Option{DeepCopy: true}); err != nil {
		return 0, fmt.Errorf("modelregistry: copy %q: %w", r.names[sourceID], err)
	}

	if len(overrides) > 0 {
		model, ok := dst.(Model)
		if !ok {
			return 0, fmt.Errorf("modelregistry: %q does not accept status overrides", r.names[sourceID])
		}

		if err := model.SetStatus(overrides); err != nil {
			return 0, fmt.Errorf("modelregistry: apply overrides to %q: %w", newName, err)
		}
	}

	return r.Register(newName, dst)
}

// NumModels returns the number of registered models.
func (r *Registry) NumModels() int {
	return len(r.prototypes)
}
