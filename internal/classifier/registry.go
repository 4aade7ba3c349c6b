// Package classifier scores kline windows. Classifiers are looked up by name
// from the setup through a compile-time registry.
package classifier

import (
	"fmt"
	"sort"

	"didibot/internal/model"
)

// Constructor builds a classifier from its setup.
type Constructor func(setup model.ClassifierSetup) (model.Classifier, error)

var registry = map[string]Constructor{
	DidiName: func(s model.ClassifierSetup) (model.Classifier, error) { return NewDidi(s) },
}

// New builds the classifier named by setup.Name.
func New(setup model.ClassifierSetup) (model.Classifier, error) {
	ctor, ok := registry[setup.Name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown classifier %q (known: %v)", model.ErrValue, setup.Name, Names())
	}
	return ctor(setup)
}

// Names lists the registered classifiers.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
