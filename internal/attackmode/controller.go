// Package attackmode owns the single shared attack-simulation flag.
//
// The controller is passed explicitly to every consumer. Consumers that
// need to react to transitions register a Listener; readers call Active.
package attackmode

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Listener is notified once per real transition of the flag
type Listener interface {
	OnAttackMode(ctx context.Context, active bool)
}

// ListenerFunc adapts a function to the Listener interface
type ListenerFunc func(ctx context.Context, active bool)

func (f ListenerFunc) OnAttackMode(ctx context.Context, active bool) {
	f(ctx, active)
}

type Controller struct {
	// transition serialises SetActive so that listeners observe edges in order
	transition sync.Mutex

	mu        sync.RWMutex
	active    bool
	listeners []Listener

	logger *logrus.Logger
}

// NewController returns an inactive controller. State is never persisted.
func NewController(logger *logrus.Logger) *Controller {
	return &Controller{logger: logger}
}

// Subscribe registers a listener. Listeners run in registration order.
func (c *Controller) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Active reports the current value of the flag
func (c *Controller) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// SetActive sets the flag. Setting the current value is a no-op.
// It returns true when a transition happened.
func (c *Controller) SetActive(ctx context.Context, active bool) bool {
	c.transition.Lock()
	defer c.transition.Unlock()

	c.mu.Lock()
	if c.active == active {
		c.mu.Unlock()
		return false
	}
	c.active = active
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	c.logger.Infof("Attack mode changed: active=%t", active)

	for _, l := range listeners {
		l.OnAttackMode(ctx, active)
	}

	return true
}
