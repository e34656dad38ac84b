// ABOUTME: Gain nodes with exponential target automation
// ABOUTME: Nodes form a tree rooted at the graph's master output
package mixer

import (
	"math"
	"slices"
)

// Gain scales the sum of everything routed into it and feeds its parent
type Gain struct {
	graph  *Graph
	parent *Gain
	depth  int

	value     float64
	connected bool

	// automation toward target, starting from value at start
	automating bool
	target     float64
	start      float64
	tau        float64

	analysers []*Analyser
	bus       []float32
}

// Parent returns the node this one feeds, nil for master
func (n *Gain) Parent() *Gain {
	return n.parent
}

// Value returns the gain at the current hardware time
func (n *Gain) Value() float64 {
	n.graph.mu.Lock()
	defer n.graph.mu.Unlock()
	return n.valueAt(n.graph.now())
}

// Target returns the automation target, or the value when not automating
func (n *Gain) Target() float64 {
	n.graph.mu.Lock()
	defer n.graph.mu.Unlock()
	if n.automating {
		return n.target
	}
	return n.value
}

// SetValue sets the gain immediately and cancels automation
func (n *Gain) SetValue(v float64) {
	n.graph.mu.Lock()
	defer n.graph.mu.Unlock()
	n.value = v
	n.automating = false
}

// SetTargetAtTime approaches target exponentially from startTime with the
// given time constant, continuing from the current value
func (n *Gain) SetTargetAtTime(target, startTime, timeConstant float64) {
	n.graph.mu.Lock()
	defer n.graph.mu.Unlock()

	now := n.graph.now()
	if timeConstant <= 0 {
		n.value = target
		n.automating = false
		return
	}
	if startTime < now {
		startTime = now
	}

	n.value = n.valueAt(now)
	n.automating = true
	n.target = target
	n.start = startTime
	n.tau = timeConstant
}

// Disconnect detaches the node and everything beneath it from the output
func (n *Gain) Disconnect() {
	g := n.graph
	g.mu.Lock()
	defer g.mu.Unlock()

	if n.parent == nil || !n.connected {
		return
	}

	detached := map[*Gain]bool{n: true}
	for grew := true; grew; {
		grew = false
		for _, node := range g.nodes {
			if node.parent != nil && detached[node.parent] && !detached[node] {
				detached[node] = true
				grew = true
			}
		}
	}
	for node := range detached {
		node.connected = false
	}
	g.nodes = slices.DeleteFunc(g.nodes, func(node *Gain) bool { return detached[node] })
}

func (n *Gain) valueAt(t float64) float64 {
	if !n.automating || t < n.start {
		return n.value
	}
	return n.target + (n.value-n.target)*math.Exp(-(t-n.start)/n.tau)
}

// settle collapses a finished ramp so long renders stay cheap
func (n *Gain) settle(now float64) {
	if !n.automating || now < n.start {
		return
	}
	v := n.valueAt(now)
	if math.Abs(v-n.target) < 1e-7 {
		n.value = n.target
		n.automating = false
	}
}
