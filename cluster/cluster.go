// Package cluster issues leadership-transfer commands to an
// etcd cluster.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/etcd/clientv3"
	"github.com/coreos/etcd/pkg/types"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

var (
	// ErrInvalidIdentity is returned when a member identity is
	// not a hexadecimal member id
	ErrInvalidIdentity = errors.New("invalid member identity")
	// ErrNoLeader is returned when no endpoint reports itself
	// as the leader
	ErrNoLeader = errors.New("no leader found")
)

// Controller transfers cluster leadership
type Controller interface {
	// TransferLeadership asks the leader reachable at
	// leaderEndpoint to hand leadership to the member
	// identified by targetIdentity
	TransferLeadership(ctx context.Context, leaderEndpoint string, targetIdentity string) error
}

// ParseIdentity parses a hexadecimal etcd member id such as
// "8e9e05c52164694d"
func ParseIdentity(identity string) (uint64, error) {
	id, err := types.IDFromString(identity)

	if err != nil {
		return 0, fmt.Errorf("%q: %w", identity, ErrInvalidIdentity)
	}

	return uint64(id), nil
}

// FormatIdentity formats a member id the way ParseIdentity
// reads it
func FormatIdentity(id uint64) string {
	return types.ID(id).String()
}

// Client is the subset of the etcd client used here
type Client interface {
	MoveLeader(ctx context.Context, transfereeID uint64) (*clientv3.MoveLeaderResponse, error)
	Status(ctx context.Context, endpoint string) (*clientv3.StatusResponse, error)
	Close() error
}

// Dialer opens a client against a set of endpoints
type Dialer func(endpoints []string) (Client, error)

// EtcdConfig contains configuration
// for an EtcdController
type EtcdConfig struct {
	Logger      *zap.Logger
	DialTimeout time.Duration
	// Dial defaults to DialEtcd
	Dial Dialer
}

var _ Controller = (*EtcdController)(nil)

// EtcdController moves leadership with the etcd maintenance API
type EtcdController struct {
	logger *zap.Logger
	dial   Dialer
}

// NewEtcdController creates an etcd controller
func NewEtcdController(config EtcdConfig) *EtcdController {
	controller := &EtcdController{logger: config.Logger, dial: config.Dial}

	if controller.logger == nil {
		controller.logger = zap.L()
	}

	if controller.dial == nil {
		dialTimeout := config.DialTimeout

		if dialTimeout == 0 {
			dialTimeout = 5 * time.Second
		}

		controller.dial = func(endpoints []string) (Client, error) {
			return DialEtcd(endpoints, dialTimeout)
		}
	}

	controller.logger = controller.logger.With(zap.String("component", "cluster"))

	return controller
}

// DialEtcd connects an etcd client to endpoints, blocking until
// the connection is up or dialTimeout passes
func DialEtcd(endpoints []string, dialTimeout time.Duration) (Client, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		DialOptions: []grpc.DialOption{grpc.WithBlock()},
	})

	if err != nil {
		return nil, fmt.Errorf("could not connect to %v: %s", endpoints, err.Error())
	}

	return client, nil
}

// TransferLeadership implements Controller.TransferLeadership.
// The client is pinned to leaderEndpoint because etcd only
// accepts a move-leader request on the current leader.
func (controller *EtcdController) TransferLeadership(ctx context.Context, leaderEndpoint string, targetIdentity string) error {
	id, err := ParseIdentity(targetIdentity)

	if err != nil {
		return err
	}

	client, err := controller.dial([]string{leaderEndpoint})

	if err != nil {
		return err
	}

	defer client.Close()

	logger := controller.logger.With(zap.String("leader", leaderEndpoint), zap.String("target", targetIdentity))
	logger.Info("moving leader")

	if _, err := client.MoveLeader(ctx, id); err != nil {
		return fmt.Errorf("move-leader via %s to %s failed: %s", leaderEndpoint, targetIdentity, err.Error())
	}

	logger.Info("moved leader")

	return nil
}

// LeaderEndpoint returns the first endpoint whose member
// reports itself as the leader
func (controller *EtcdController) LeaderEndpoint(ctx context.Context, endpoints []string) (string, error) {
	client, err := controller.dial(endpoints)

	if err != nil {
		return "", err
	}

	defer client.Close()

	for _, endpoint := range endpoints {
		status, err := client.Status(ctx, endpoint)

		if err != nil {
			controller.logger.Warn("could not get member status", zap.String("endpoint", endpoint), zap.Error(err))

			continue
		}

		if status.Header != nil && status.Header.MemberId == status.Leader {
			return endpoint, nil
		}
	}

	return "", ErrNoLeader
}
