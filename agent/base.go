package agent

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/weatherteam/core"
)

// ErrAlreadyParented is returned when a sub-agent already belongs to
// another agent.
var ErrAlreadyParented = errors.New("agent already has a parent")

// BaseAgent bundles identity and hierarchy management. Embed it in concrete
// agent implementations, call bind with the outer value and supply a Run
// method to satisfy core.Agent. All exported methods are goroutine-safe.
type BaseAgent struct {
	name        string       // Unique name within the tree
	description string       // Shown to parents deciding whom to delegate to
	mu          sync.Mutex   // Protects hierarchy fields
	self        core.Agent   // Outer agent embedding this base
	parent      core.Agent   // Parent agent; nil for the root
	subAgents   []core.Agent // Child agents managed by this agent
}

// NewBaseAgent constructs a BaseAgent with a generated description
// (customizable via SetDescription).
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
	}
}

// bind records the concrete agent so hierarchy lookups return it instead of
// the embedded base.
func (b *BaseAgent) bind(self core.Agent) { b.self = self }

// Name returns the agent's unique name.
func (b *BaseAgent) Name() string { return b.name }

// Description returns the agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// SetSubAgents replaces the child set and assigns this agent as parent of
// each child. A child that already has a different parent is rejected and
// the previous set stays in place.
func (b *BaseAgent) SetSubAgents(children ...core.Agent) error {
	seen := make(map[string]struct{}, len(children))
	for _, child := range children {
		if _, dup := seen[child.Name()]; dup {
			return fmt.Errorf("duplicate sub-agent name %q", child.Name())
		}
		seen[child.Name()] = struct{}{}
		if p := child.Parent(); p != nil && p.Name() != b.name {
			return fmt.Errorf("%w: %s belongs to %s", ErrAlreadyParented, child.Name(), p.Name())
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, child := range b.subAgents {
		if setter, ok := child.(interface{ setParent(core.Agent) }); ok {
			setter.setParent(nil)
		}
	}

	b.subAgents = nil
	for _, child := range children {
		if setter, ok := child.(interface{ setParent(core.Agent) }); ok {
			setter.setParent(b.self)
		}
		b.subAgents = append(b.subAgents, child)
	}

	return nil
}

// setParent sets the internal parent reference.
func (b *BaseAgent) setParent(p core.Agent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parent = p
}

// Parent returns the current parent agent or nil if this agent is root.
func (b *BaseAgent) Parent() core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parent
}

// SubAgents returns a shallow copy of current child agents for safe iteration.
func (b *BaseAgent) SubAgents() []core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]core.Agent, len(b.subAgents))
	copy(result, b.subAgents)
	return result
}

// FindAgent performs a depth-first search over the subtree rooted at this
// agent (including itself) returning the first agent whose Name matches.
func (b *BaseAgent) FindAgent(name string) core.Agent {
	if b.name == name && b.self != nil {
		return b.self
	}

	for _, child := range b.SubAgents() {
		if found := child.FindAgent(name); found != nil {
			return found
		}
	}

	return nil
}

// Root walks parents up to the top of the tree.
func Root(a core.Agent) core.Agent {
	for a.Parent() != nil {
		a = a.Parent()
	}
	return a
}
