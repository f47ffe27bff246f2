package transport

import (
	"context"
	"errors"
)

// ErrNoSuchFile indicates that the local file to copy
// does not exist
var ErrNoSuchFile = errors.New("local file does not exist")

// Copier copies a local file to a path on a remote host
type Copier interface {
	CopyFile(ctx context.Context, localPath string, host string, remotePath string) error
}
