package profile

import (
	"context"
	"sort"
	"strconv"
	"sync"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/services/fs"
	"github.com/stratastore/strata/pkg/services/httpfetch"
	"github.com/stratastore/strata/pkg/services/memory"
	"github.com/stratastore/strata/pkg/services/s3"
	"github.com/stratastore/strata/pkg/types"
)

// Factory builds a service accessor from profile options.
type Factory func(ctx context.Context, options map[string]string) (types.Accessor, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register installs a factory for a scheme, replacing any previous one.
// Out-of-tree services call this from an init function.
func Register(scheme string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[scheme] = factory
}

// Schemes returns the registered scheme names, sorted.
func Schemes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(scheme string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[scheme]
	return f, ok
}

func init() {
	Register("memory", func(_ context.Context, options map[string]string) (types.Accessor, error) {
		return memory.New(memory.Config{
			Root: options["root"],
			Name: options["name"],
		}), nil
	})

	Register("fs", func(_ context.Context, options map[string]string) (types.Accessor, error) {
		root, err := option("fs", options, "root_dir")
		if err != nil {
			return nil, err
		}
		return fs.New(fs.Config{RootDir: root})
	})

	Register("http", func(_ context.Context, options map[string]string) (types.Accessor, error) {
		endpoint, err := option("http", options, "endpoint")
		if err != nil {
			return nil, err
		}
		return httpfetch.New(httpfetch.Config{
			Endpoint:  endpoint,
			UserAgent: options["user_agent"],
		})
	})

	Register("s3", func(ctx context.Context, options map[string]string) (types.Accessor, error) {
		bucket, err := option("s3", options, "bucket")
		if err != nil {
			return nil, err
		}
		cfg := s3.Config{
			Bucket:          bucket,
			Region:          options["region"],
			Endpoint:        options["endpoint"],
			Root:            options["root"],
			AccessKeyID:     options["access_key_id"],
			SecretAccessKey: options["secret_access_key"],
		}
		if v := options["use_path_style"]; v != "" {
			usePathStyle, perr := strconv.ParseBool(v)
			if perr != nil {
				return nil, serrors.Newf(serrors.KindInvalidArgument, "invalid use_path_style %q", v).WithScheme("s3")
			}
			cfg.UsePathStyle = usePathStyle
		}
		if v := options["part_size"]; v != "" {
			partSize, perr := strconv.ParseInt(v, 10, 64)
			if perr != nil {
				return nil, serrors.Newf(serrors.KindInvalidArgument, "invalid part_size %q", v).WithScheme("s3")
			}
			cfg.PartSize = partSize
		}
		return s3.New(ctx, cfg)
	})
}
