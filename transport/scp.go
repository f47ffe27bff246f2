package transport

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var _ Copier = (*SCP)(nil)

// SCPConfig contains configuration
// for an scp copier
type SCPConfig struct {
	Logger *zap.Logger
	// Binary defaults to "scp"
	Binary string
	User   string
	// Port is the ssh port. 0 leaves it to the ssh config.
	Port int
	// IdentityFile is a private key path. Empty leaves it to
	// the ssh config.
	IdentityFile string
	// Options are extra -o options such as
	// StrictHostKeyChecking=no
	Options []string
}

// SCP copies files with the system scp binary
type SCP struct {
	logger *zap.Logger
	config SCPConfig
}

// NewSCP creates an scp copier
func NewSCP(config SCPConfig) *SCP {
	copier := &SCP{logger: config.Logger, config: config}

	if copier.logger == nil {
		copier.logger = zap.L()
	}

	if copier.config.Binary == "" {
		copier.config.Binary = "scp"
	}

	copier.logger = copier.logger.With(zap.String("transport", "scp"))

	return copier
}

// Args returns the scp arguments used to copy localPath
// to remotePath on host
func (copier *SCP) Args(localPath string, host string, remotePath string) []string {
	args := []string{"-q", "-o", "BatchMode=yes"}

	for _, option := range copier.config.Options {
		args = append(args, "-o", option)
	}

	if copier.config.Port != 0 {
		args = append(args, "-P", strconv.Itoa(copier.config.Port))
	}

	if copier.config.IdentityFile != "" {
		args = append(args, "-i", copier.config.IdentityFile)
	}

	destination := host

	if copier.config.User != "" {
		destination = copier.config.User + "@" + host
	}

	if strings.Contains(host, ":") {
		// IPv6 literals must be bracketed in scp targets
		destination = strings.Replace(destination, host, "["+host+"]", 1)
	}

	return append(args, localPath, destination+":"+remotePath)
}

// CopyFile implements Copier.CopyFile
func (copier *SCP) CopyFile(ctx context.Context, localPath string, host string, remotePath string) error {
	if _, err := os.Stat(localPath); err != nil {
		return fmt.Errorf("%s: %w", localPath, ErrNoSuchFile)
	}

	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, copier.config.Binary, copier.Args(localPath, host, remotePath)...)
	cmd.Stderr = &stderr

	copier.logger.Debug("copying file", zap.String("local", localPath), zap.String("host", host), zap.String("remote", remotePath))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("scp to %s failed: %s: %w", host, strings.TrimSpace(stderr.String()), err)
	}

	return nil
}
