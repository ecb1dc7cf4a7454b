package paymentprovider

import (
	"fmt"
	"strings"
)

// Registry набор адаптеров по имени провайдера.
type Registry struct {
	adapters       map[string]Adapter
	defaultAdapter string
}

// NewRegistry создаёт реестр. defaultName используется, когда провайдер не указан.
func NewRegistry(defaultName string, adapters ...Adapter) *Registry {
	r := &Registry{
		adapters:       make(map[string]Adapter, len(adapters)),
		defaultAdapter: strings.ToLower(strings.TrimSpace(defaultName)),
	}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Get возвращает адаптер по имени без учёта регистра. Пустое имя означает провайдера по умолчанию.
func (r *Registry) Get(name string) (Adapter, error) {
	const op = "paymentprovider.Registry.Get"

	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = r.defaultAdapter
	}
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %q", op, ErrUnknownProvider, name)
	}
	return a, nil
}

