package reload

import (
	"sync"

	"github.com/jrife/placement/forecast"
)

// Holder is the single shared cell holding the current
// forecaster. Readers always observe a fully constructed
// forecaster: the lock is held only for the swap.
type Holder struct {
	mu         sync.Mutex
	forecaster forecast.Forecaster
}

// NewHolder creates a holder publishing forecaster
func NewHolder(forecaster forecast.Forecaster) *Holder {
	return &Holder{forecaster: forecaster}
}

// Get returns the current forecaster
func (holder *Holder) Get() forecast.Forecaster {
	holder.mu.Lock()
	defer holder.mu.Unlock()

	return holder.forecaster
}

// Set publishes forecaster. A nil forecaster is ignored.
func (holder *Holder) Set(forecaster forecast.Forecaster) {
	if forecaster == nil {
		return
	}

	holder.mu.Lock()
	defer holder.mu.Unlock()

	holder.forecaster = forecaster
}
