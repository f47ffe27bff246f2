package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var _ Copier = (*Local)(nil)

// Local copies files on the local filesystem, ignoring the
// host. It serves single-host deployments and tests. If Root
// is set, remote paths are placed under Root/host.
type Local struct {
	Root string
}

// Destination returns where CopyFile puts remotePath for host
func (local *Local) Destination(host string, remotePath string) string {
	if local.Root == "" {
		return remotePath
	}

	return filepath.Join(local.Root, host, remotePath)
}

// CopyFile implements Copier.CopyFile
func (local *Local) CopyFile(ctx context.Context, localPath string, host string, remotePath string) error {
	src, err := os.Open(localPath)

	if err != nil {
		return fmt.Errorf("%s: %w", localPath, ErrNoSuchFile)
	}

	defer src.Close()

	destination := local.Destination(host, remotePath)

	if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return fmt.Errorf("could not create directory for %s: %s", destination, err.Error())
	}

	dst, err := os.Create(destination)

	if err != nil {
		return fmt.Errorf("could not create %s: %s", destination, err.Error())
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()

		return fmt.Errorf("could not copy to %s: %s", destination, err.Error())
	}

	return dst.Close()
}
