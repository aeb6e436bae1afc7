// Package profile builds operators from declarative YAML profiles.
//
// A profile names a service scheme, its options, and the layer stack to
// apply, so deployments can swap backends and tuning without code changes:
//
//	scheme: s3
//	options:
//	  bucket: backups
//	  region: us-west-2
//	layers:
//	  retry:
//	    max_attempts: 5
//	  concurrency: 32
//	  throttle:
//	    ops_per_second: 200
package profile

import (
	"context"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/layers"
	"github.com/stratastore/strata/pkg/operator"
)

// Profile is the parsed form of a profile document.
type Profile struct {
	// Scheme selects the service, e.g. "memory", "fs", "s3", "http".
	Scheme string `yaml:"scheme"`
	// Options are passed verbatim to the service factory.
	Options map[string]string `yaml:"options"`
	// Layers configures the layer stack.
	Layers LayersConfig `yaml:"layers"`
}

// LayersConfig selects and tunes the layers a profile applies. A nil
// section leaves that layer out.
type LayersConfig struct {
	Retry       *RetryOptions          `yaml:"retry"`
	Concurrency int64                  `yaml:"concurrency"`
	Throttle    *layers.ThrottleConfig `yaml:"throttle"`
	Breaker     *BreakerOptions        `yaml:"breaker"`
	Logging     bool                   `yaml:"logging"`
	Metrics     bool                   `yaml:"metrics"`
	Tracing     bool                   `yaml:"tracing"`
	RenameVia   string                 `yaml:"rename_via"` // "copy-delete" enables rename emulation
}

// Duration is a time.Duration that unmarshals from YAML strings like "50ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// RetryOptions is the YAML-facing shape of the retry layer configuration.
type RetryOptions struct {
	MaxAttempts  int      `yaml:"max_attempts"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	MaxElapsed   Duration `yaml:"max_elapsed"`
	Multiplier   float64  `yaml:"multiplier"`
	Jitter       bool     `yaml:"jitter"`
}

func (o RetryOptions) config() layers.RetryConfig {
	return layers.RetryConfig{
		MaxAttempts:  o.MaxAttempts,
		InitialDelay: time.Duration(o.InitialDelay),
		MaxDelay:     time.Duration(o.MaxDelay),
		MaxElapsed:   time.Duration(o.MaxElapsed),
		Multiplier:   o.Multiplier,
		Jitter:       o.Jitter,
	}
}

// BreakerOptions is the YAML-facing shape of the circuit-breaker layer
// configuration.
type BreakerOptions struct {
	MaxRequests uint32   `yaml:"max_requests"`
	Interval    Duration `yaml:"interval"`
	Timeout     Duration `yaml:"timeout"`
}

func (o BreakerOptions) config() layers.BreakerConfig {
	return layers.BreakerConfig{
		MaxRequests: o.MaxRequests,
		Interval:    time.Duration(o.Interval),
		Timeout:     time.Duration(o.Timeout),
	}
}

// Parse decodes a YAML profile document.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return nil, serrors.New(serrors.KindInvalidArgument, "malformed profile").WithCause(err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads and parses a profile file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, serrors.Newf(serrors.KindInvalidArgument, "cannot read profile %s", path).WithCause(err)
	}
	return Parse(data)
}

// Validate checks the profile for structural problems before any backend
// is contacted.
func (p *Profile) Validate() error {
	if p.Scheme == "" {
		return serrors.New(serrors.KindInvalidArgument, "profile is missing a scheme")
	}
	if _, ok := lookup(p.Scheme); !ok {
		return serrors.Newf(serrors.KindUnsupported, "unknown scheme %q (registered: %v)", p.Scheme, Schemes())
	}
	if p.Layers.Concurrency < 0 {
		return serrors.New(serrors.KindInvalidArgument, "layers.concurrency must be non-negative")
	}
	if p.Layers.RenameVia != "" && p.Layers.RenameVia != "copy-delete" {
		return serrors.Newf(serrors.KindInvalidArgument, "unknown rename_via %q", p.Layers.RenameVia)
	}
	return nil
}

// Build constructs the service named by the profile and wraps it in the
// configured layer stack.
//
// Stack order is fixed: rename emulation sits closest to the service so the
// copy and delete it issues pass through every other layer's accounting;
// retry wraps the breaker so probe rejections are retried; throttle and
// concurrency sit above retry so each retried attempt pays for admission
// again; observability layers are outermost and see the final outcome once.
func (p *Profile) Build(ctx context.Context) (*operator.Operator, error) {
	factory, ok := lookup(p.Scheme)
	if !ok {
		return nil, serrors.Newf(serrors.KindUnsupported, "unknown scheme %q", p.Scheme)
	}
	accessor, err := factory(ctx, p.Options)
	if err != nil {
		return nil, err
	}

	var stack []layers.Layer
	if p.Layers.RenameVia == "copy-delete" {
		stack = append(stack, layers.NewRenameEmulation())
	}
	if p.Layers.Breaker != nil {
		stack = append(stack, layers.NewBreaker(p.Layers.Breaker.config()))
	}
	if p.Layers.Retry != nil {
		stack = append(stack, layers.NewRetry(p.Layers.Retry.config()))
	}
	if p.Layers.Throttle != nil {
		stack = append(stack, layers.NewThrottle(*p.Layers.Throttle))
	}
	if p.Layers.Concurrency > 0 {
		stack = append(stack, layers.NewConcurrencyLimit(p.Layers.Concurrency))
	}
	if p.Layers.Logging {
		stack = append(stack, layers.NewLogging(nil))
	}
	if p.Layers.Metrics {
		stack = append(stack, layers.NewMetrics(nil))
	}
	if p.Layers.Tracing {
		stack = append(stack, layers.NewTracing(nil))
	}

	return operator.New(accessor, stack...)
}

// option fetches a required option, reporting which scheme needed it.
func option(scheme string, options map[string]string, key string) (string, error) {
	v, ok := options[key]
	if !ok || v == "" {
		return "", serrors.Newf(serrors.KindInvalidArgument, "%s profile requires option %q", scheme, key).WithScheme(scheme)
	}
	return v, nil
}

