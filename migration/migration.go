// Package migration moves leadership to another replica. A
// migration copies the local load-history snapshot to the
// target host, asks the current leader to hand leadership to
// the target and then removes the local snapshot. Nothing is
// retried: a failed step aborts the attempt.
package migration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/jrife/placement/cluster"
	"github.com/jrife/placement/transport"
	"github.com/jrife/placement/utils/log"
	"go.uber.org/zap"
)

var (
	// ErrUnresolvedTarget is returned when the target address
	// has no known cluster identity
	ErrUnresolvedTarget = errors.New("target has no known cluster identity")
	// ErrTransport is returned when the snapshot copy fails
	ErrTransport = errors.New("snapshot transfer failed")
	// ErrControlCommand is returned when the leadership
	// transfer command fails
	ErrControlCommand = errors.New("leadership transfer failed")
)

// DefaultClientPort is the etcd client port
const DefaultClientPort = 2379

// Identities resolves a client endpoint (host:port) to a
// cluster identity
type Identities interface {
	Identity(endpoint string) (string, bool)
}

// Config contains configuration
// for an Executor
type Config struct {
	Logger     *zap.Logger
	Identities Identities
	Copier     transport.Copier
	Controller cluster.Controller
	// ClientPort is the port joined to replica addresses to
	// form cluster endpoints. Defaults to DefaultClientPort.
	ClientPort int
	// SnapshotPath is the local load-history snapshot
	SnapshotPath string
	// RemoteSnapshotPath is where the snapshot goes on the
	// target host. Defaults to SnapshotPath.
	RemoteSnapshotPath string
}

// Result describes a migration attempt
type Result struct {
	// Move is the wall-clock duration of the copy and
	// transfer steps
	Move        time.Duration
	Copied      bool
	Transferred bool
}

// Executor runs migrations
type Executor struct {
	logger             *zap.Logger
	identities         Identities
	copier             transport.Copier
	controller         cluster.Controller
	clientPort         int
	snapshotPath       string
	remoteSnapshotPath string
}

// New creates an executor
func New(config Config) *Executor {
	executor := &Executor{
		logger:             config.Logger,
		identities:         config.Identities,
		copier:             config.Copier,
		controller:         config.Controller,
		clientPort:         config.ClientPort,
		snapshotPath:       config.SnapshotPath,
		remoteSnapshotPath: config.RemoteSnapshotPath,
	}

	if executor.logger == nil {
		executor.logger = zap.L()
	}

	if executor.clientPort == 0 {
		executor.clientPort = DefaultClientPort
	}

	if executor.remoteSnapshotPath == "" {
		executor.remoteSnapshotPath = executor.snapshotPath
	}

	executor.logger = executor.logger.With(zap.String("component", "migration"))

	return executor
}

// Endpoint returns the cluster endpoint of a replica address
func (executor *Executor) Endpoint(address string) string {
	return net.JoinHostPort(address, strconv.Itoa(executor.clientPort))
}

// Resolve returns the cluster identity of the replica at
// address. It returns ErrUnresolvedTarget if there is none.
func (executor *Executor) Resolve(address string) (string, error) {
	endpoint := executor.Endpoint(address)
	identity, ok := executor.identities.Identity(endpoint)

	if !ok {
		return "", fmt.Errorf("%s: %w", endpoint, ErrUnresolvedTarget)
	}

	return identity, nil
}

// Migrate moves leadership from the replica at self, which is
// assumed to be the current leader, to the replica at target.
// The returned result carries the duration measured so far
// even when a step fails.
func (executor *Executor) Migrate(ctx context.Context, self string, target string) (Result, error) {
	var result Result

	if target == self {
		return result, fmt.Errorf("target %s is the local replica", target)
	}

	identity, err := executor.Resolve(target)

	if err != nil {
		return result, err
	}

	logger := log.WithContext(ctx, executor.logger).With(zap.String("self", self), zap.String("target", target), zap.String("identity", identity))
	start := time.Now()

	logger.Info("copying snapshot", zap.String("local", executor.snapshotPath), zap.String("remote", executor.remoteSnapshotPath))

	if err := executor.copier.CopyFile(ctx, executor.snapshotPath, target, executor.remoteSnapshotPath); err != nil {
		result.Move = time.Since(start)
		logger.Error("snapshot copy failed", zap.Error(err))

		return result, fmt.Errorf("%w: %s", ErrTransport, err.Error())
	}

	result.Copied = true
	leader := executor.Endpoint(self)

	logger.Info("transferring leadership", zap.String("leader", leader))

	if err := executor.controller.TransferLeadership(ctx, leader, identity); err != nil {
		result.Move = time.Since(start)
		logger.Error("leadership transfer failed", zap.Error(err))

		return result, fmt.Errorf("%w: %s", ErrControlCommand, err.Error())
	}

	result.Transferred = true
	result.Move = time.Since(start)

	if err := os.Remove(executor.snapshotPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("could not remove local snapshot", zap.Error(err))
	}

	logger.Info("migration complete", zap.Duration("move", result.Move))

	return result, nil
}
