package layers

import (
	"github.com/stratastore/strata/pkg/types"
)

// Layer produces a new Accessor with added behavior around inner. The inner
// accessor is never aware of the wrapping.
type Layer interface {
	Apply(inner types.Accessor) types.Accessor
}

// LayerFunc adapts a plain function to the Layer interface.
type LayerFunc func(types.Accessor) types.Accessor

// Apply implements Layer.
func (f LayerFunc) Apply(inner types.Accessor) types.Accessor { return f(inner) }

// Apply composes base with the given layers. The first layer is applied
// first (innermost), the last layer is outermost. The composed stack is
// immutable: there is no way to insert or remove a layer afterwards.
func Apply(base types.Accessor, ls ...Layer) types.Accessor {
	acc := base
	for _, l := range ls {
		acc = l.Apply(acc)
	}
	return acc
}
