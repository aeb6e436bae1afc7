/*
Package types provides the core interfaces, data structures, and type definitions for Strata.

This package is the foundation of the access layer: it defines the Accessor
contract implemented by every storage service and every composed layer, the
immutable value types exchanged across that contract, and the streaming
Reader/Writer/Lister interfaces.

# Architecture Overview

Strata follows a layered architecture in which cross-cutting behavior is
stacked around a base storage service at construction time:

	┌─────────────────────────────────────────────┐
	│                Application                  │
	│            (pkg/operator.Operator)          │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│               Layer Stack                   │
	│  retry → throttle → concurrency → metrics   │
	│             (pkg/layers)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│             Storage Service                 │
	│    (pkg/services/{memory,fs,s3,httpfetch})  │
	└─────────────────────────────────────────────┘

Every box below the application implements the same Accessor interface, which
is what makes arbitrary-depth composition possible: a layer wrapping an
accessor is itself an accessor.

# Capability Model

Not every service supports every operation. Each accessor declares a
Capability set once at construction; the set is read-only afterwards. Callers
and layers may rely on an advertised capability being honored, and every
operation on an accessor that does not advertise it fails fast with an
Unsupported error before any backend I/O is attempted.

# Streaming Contracts

Read, Write, and List return lazy streams rather than materialized results.
A Reader yields the requested byte range and is not restartable once
partially consumed. A Writer commits only on Close; Abort releases any
partial server-side state, and a Writer that is neither closed nor aborted
never silently commits. A Lister transparently walks continuation tokens and
is safe to drop partially consumed.
*/
package types
