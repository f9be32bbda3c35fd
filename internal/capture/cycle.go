package capture

import "github.com/23skdu/longbow-neurons/internal/tensor"

// Cycle is the capture context of one inference. It is owned by the Manager
// while open and by the caller after Collect.
type Cycle struct {
	Seq int

	order  []string
	values map[string]*tensor.Tensor
	writes map[string]int
}

func newCycle(seq int, components []string) *Cycle {
	return &Cycle{
		Seq:    seq,
		order:  components,
		values: make(map[string]*tensor.Tensor, len(components)),
		writes: make(map[string]int, len(components)),
	}
}

// record overwrites: the last observation in a cycle wins.
func (c *Cycle) record(component string, t *tensor.Tensor) {
	c.values[component] = t
	c.writes[component]++
}

func (c *Cycle) Get(component string) (*tensor.Tensor, bool) {
	t, ok := c.values[component]
	return t, ok
}

// Components lists observed components in registration order.
func (c *Cycle) Components() []string {
	out := make([]string, 0, len(c.values))
	for _, id := range c.order {
		if _, ok := c.values[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (c *Cycle) Len() int {
	return len(c.values)
}

// Writes reports how many times a component was observed this cycle.
func (c *Cycle) Writes(component string) int {
	return c.writes[component]
}
