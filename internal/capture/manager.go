// Package capture attaches observation points to a model and records the
// tensors they see during one inference at a time.
package capture

import (
	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/hooks"
	"github.com/23skdu/longbow-neurons/internal/logger"
	"github.com/23skdu/longbow-neurons/internal/metrics"
	"github.com/23skdu/longbow-neurons/internal/tensor"
)

type State int

const (
	Idle      State = iota // registering components
	Armed                  // sealed, not recording
	Capturing              // recording into the open cycle
	Closed                 // torn down
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Capturing:
		return "capturing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Target is anything exposing named hook sites.
type Target interface {
	RegisterHook(site string, fn hooks.Func) (*hooks.Handle, error)
}

// Manager drives the Idle -> Armed -> Capturing -> Armed ... lifecycle.
type Manager struct {
	target     Target
	state      State
	components []string
	handles    []*hooks.Handle
	cycle      *Cycle
	finished   bool // cycle disabled but not yet collected
	seq        int
	log        *logger.Logger
}

func New(target Target) *Manager {
	return &Manager{
		target: target,
		log:    logger.Log.With("module", "capture"),
	}
}

func (m *Manager) State() State {
	return m.state
}

// Components returns the registered ids in registration order.
func (m *Manager) Components() []string {
	return append([]string(nil), m.components...)
}

// Register attaches an observation point. Only legal while Idle.
func (m *Manager) Register(component string) error {
	if m.state != Idle {
		return faults.Configuration("register", "cannot register %q in state %s", component, m.state)
	}
	for _, c := range m.components {
		if c == component {
			return faults.Configuration("register", "component %q already registered", component)
		}
	}
	h, err := m.target.RegisterHook(component, m.observe)
	if err != nil {
		return err
	}
	m.components = append(m.components, component)
	m.handles = append(m.handles, h)
	return nil
}

// Seal freezes the component set and moves to Armed.
func (m *Manager) Seal() error {
	if m.state != Idle {
		return faults.State("seal", "cannot seal in state %s", m.state)
	}
	if len(m.components) == 0 {
		return faults.Configuration("seal", "no components registered")
	}
	m.state = Armed
	return nil
}

// Enable opens a new cycle. The previous cycle must have been collected.
func (m *Manager) Enable() error {
	switch m.state {
	case Idle:
		if err := m.Seal(); err != nil {
			return err
		}
	case Capturing:
		return faults.State("enable", "cycle %d already capturing", m.seq)
	case Closed:
		return faults.State("enable", "manager torn down")
	}
	if m.finished {
		return faults.State("enable", "cycle %d not collected", m.seq)
	}
	m.seq++
	m.cycle = newCycle(m.seq, m.components)
	m.state = Capturing
	return nil
}

// Disable stops recording into the open cycle.
func (m *Manager) Disable() error {
	if m.state != Capturing {
		return faults.State("disable", "not capturing (state %s)", m.state)
	}
	m.state = Armed
	m.finished = true
	return nil
}

// Collect hands over the finished cycle.
func (m *Manager) Collect() (*Cycle, error) {
	if m.state == Capturing {
		return nil, faults.State("collect", "cycle %d still capturing", m.seq)
	}
	if !m.finished {
		return nil, faults.State("collect", "no finished cycle (state %s)", m.state)
	}
	c := m.cycle
	m.cycle = nil
	m.finished = false
	return c, nil
}

// Teardown detaches every observation point. A second call fails.
func (m *Manager) Teardown() error {
	if m.state == Closed {
		return faults.State("teardown", "already torn down")
	}
	for _, h := range m.handles {
		h.Remove()
	}
	m.handles = nil
	m.cycle = nil
	m.finished = false
	m.state = Closed
	return nil
}

func (m *Manager) observe(site string, out hooks.Output) {
	if m.state != Capturing || m.cycle == nil {
		return
	}
	if out.Primary == nil {
		m.log.Warn("Site emitted no primary tensor", "component", site)
		return
	}
	m.cycle.record(site, m.extract(site, out.Primary))
}

// extract keeps the last sequence position of [1,T,D] outputs. Rank 1 and 2
// pass through; anything else is flattened.
func (m *Manager) extract(site string, t *tensor.Tensor) *tensor.Tensor {
	switch {
	case t.Rank() == 3 && t.Shape[0] == 1 && t.Shape[1] > 0:
		last, err := t.LastPosition()
		if err == nil {
			return last
		}
	case t.Rank() == 1 || t.Rank() == 2:
		return t.Clone()
	}
	m.log.Warn("Unexpected tensor shape, flattening", "component", site, "shape", t.Shape)
	metrics.RecordShapeFallback("observe")
	return t.Flatten()
}
