package layers

import (
	"context"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/types"
)

// RenameEmulation adds a rename capability to accessors that support copy
// and delete but not rename, by substituting copy+delete. The emulation is
// not atomic: a failure between the copy and the delete leaves both objects
// in place, never neither.
//
// When the inner accessor already supports rename, or lacks copy or delete,
// the layer is a no-op.
type RenameEmulation struct{}

// NewRenameEmulation creates a rename-emulation layer.
func NewRenameEmulation() *RenameEmulation { return &RenameEmulation{} }

// Apply implements Layer.
func (l *RenameEmulation) Apply(inner types.Accessor) types.Accessor {
	cap := inner.Info().Capability
	if cap.Rename || !cap.Copy || !cap.Delete {
		return inner
	}
	info := inner.Info()
	info.Capability.Rename = true
	return &renameEmulator{inner: inner, info: info}
}

type renameEmulator struct {
	inner types.Accessor
	info  types.AccessorInfo
}

func (a *renameEmulator) Info() types.AccessorInfo { return a.info }

func (a *renameEmulator) Rename(ctx context.Context, from, to string, args types.OpRename) error {
	if err := a.inner.Copy(ctx, from, to, types.OpCopy{Overwrite: args.Overwrite}); err != nil {
		return err
	}
	if err := a.inner.Delete(ctx, from, types.OpDelete{}); err != nil {
		// The copy landed; surface the cleanup failure with that context.
		if se, ok := err.(*serrors.Error); ok {
			return se.WithContext("rename_emulation", "source not deleted after copy")
		}
		return err
	}
	return nil
}

func (a *renameEmulator) Stat(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
	return a.inner.Stat(ctx, path, args)
}

func (a *renameEmulator) Read(ctx context.Context, path string, args types.OpRead) (types.Reader, error) {
	return a.inner.Read(ctx, path, args)
}

func (a *renameEmulator) Write(ctx context.Context, path string, args types.OpWrite) (types.Writer, error) {
	return a.inner.Write(ctx, path, args)
}

func (a *renameEmulator) Delete(ctx context.Context, path string, args types.OpDelete) error {
	return a.inner.Delete(ctx, path, args)
}

func (a *renameEmulator) List(ctx context.Context, path string, args types.OpList) (types.Lister, error) {
	return a.inner.List(ctx, path, args)
}

func (a *renameEmulator) Copy(ctx context.Context, from, to string, args types.OpCopy) error {
	return a.inner.Copy(ctx, from, to, args)
}

func (a *renameEmulator) Presign(ctx context.Context, path string, args types.OpPresign) (*types.PresignedRequest, error) {
	return a.inner.Presign(ctx, path, args)
}
