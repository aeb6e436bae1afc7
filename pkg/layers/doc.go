/*
Package layers implements the composition engine that wraps any Accessor
with cross-cutting behavior, plus the concrete layers shipped with Strata.

A Layer is a transformation from Accessor to Accessor. Layers are applied
once at construction time, left-to-right, so the last layer listed is
outermost and sees every call first:

	acc := layers.Apply(base,
		layers.NewConcurrencyLimit(16), // innermost: closest to the backend
		layers.NewRetry(layers.RetryConfig{}),
	)

Order is semantically significant. In the stack above the retry layer sits
outside the concurrency limit, so each retried attempt re-acquires a slot;
swapping the two would hold one slot across all attempts of a call.

Each concrete layer forwards the inner accessor's capability set unchanged
unless the layer's purpose is to extend it (RenameEmulation). Failures inside
a layer propagate as taxonomy errors through the ordinary return path.
*/
package layers
