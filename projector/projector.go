// Package projector reduces a forecast horizon to one
// projected load per replica. The horizon is averaged
// column by column, which damps single-step noise in the
// forecast.
package projector

import (
	"sort"
	"strings"

	"github.com/jrife/placement/forecast"
	"github.com/jrife/placement/replica"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Resolver resolves a forecast node id to the network
// address of the host it runs on
type Resolver interface {
	HostOf(node string) (string, bool)
}

// Config contains configuration
// for a projector
type Config struct {
	Logger   *zap.Logger
	Resolver Resolver
}

// Projector turns forecast windows into replicas
type Projector struct {
	logger   *zap.Logger
	resolver Resolver
}

// New creates a projector
func New(config Config) *Projector {
	projector := &Projector{logger: config.Logger, resolver: config.Resolver}

	if projector.logger == nil {
		projector.logger = zap.L()
	}

	projector.logger = projector.logger.With(zap.String("component", "projector"))

	return projector
}

type load struct {
	read  float64
	write float64
}

// Project averages every column of the window and pairs the
// {id}_read and {id}_write means into replicas sorted by id.
// Replicas whose address cannot be resolved are dropped with
// a warning. Replicas whose mean read and write are both
// exactly zero are dropped. Every replica has voting weight 1.
func (projector *Projector) Project(window forecast.Window) []replica.Replica {
	if window.Empty() {
		return nil
	}

	loads := map[string]*load{}

	for i, column := range window.Columns {
		var id string
		var isRead bool

		switch {
		case strings.HasSuffix(column, forecast.ReadSuffix):
			id, isRead = strings.TrimSuffix(column, forecast.ReadSuffix), true
		case strings.HasSuffix(column, forecast.WriteSuffix):
			id = strings.TrimSuffix(column, forecast.WriteSuffix)
		default:
			continue
		}

		values := window.Column(i)

		if len(values) == 0 {
			continue
		}

		mean := stat.Mean(values, nil)

		if _, ok := loads[id]; !ok {
			loads[id] = &load{}
		}

		if isRead {
			loads[id].read = mean
		} else {
			loads[id].write = mean
		}
	}

	ids := make([]string, 0, len(loads))

	for id := range loads {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	replicas := make([]replica.Replica, 0, len(ids))

	for _, id := range ids {
		l := loads[id]

		if l.read == 0 && l.write == 0 {
			projector.logger.Debug("dropping idle replica", zap.String("replica", id))

			continue
		}

		address, ok := projector.resolver.HostOf(id)

		if !ok {
			projector.logger.Warn("dropping replica with unknown address", zap.String("replica", id))

			continue
		}

		replicas = append(replicas, replica.Replica{
			ID:      id,
			Address: address,
			Weight:  1,
			Read:    l.read,
			Write:   l.write,
		})

		projector.logger.Debug("projected replica load",
			zap.String("replica", id),
			zap.String("address", address),
			zap.Float64("read", l.read),
			zap.Float64("write", l.write),
		)
	}

	return replicas
}
