package delivery

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"syndicate/internal/fileutil"
)

// DirUploader writes files into a local directory.
type DirUploader struct {
	Root string
}

// Upload writes data atomically under Root. name may contain sub directories.
func (d *DirUploader) Upload(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return fmt.Errorf("invalid upload name %q", name)
	}
	target := filepath.Join(d.Root, clean)
	if err := fileutil.WriteAtomic(target, data, 0o644); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

// Close implements transmission.Uploader.
func (d *DirUploader) Close() error { return nil }

func (d *DirUploader) String() string { return d.Root }
