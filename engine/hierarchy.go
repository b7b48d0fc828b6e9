/*
hierarchy.go - Parent-indexed agent hierarchy

PURPOSE:
  The hierarchy is a forest of at most 4 levels: Agent (1) -> Team Lead
  (2) -> Manager (3) -> Director (4). It is represented as a flat id ->
  agent table with parent links; traversal is iterative, never through
  embedded child pointers.

INVARIANTS:
  - parent.level == child.level + 1 (exactly one level up)
  - level-4 agents have no parent; levels 1..3 require one
  - no cycles; every upline walk terminates within MaxLevel hops
*/
package engine

import "fmt"

// Hierarchy is an in-memory index over a set of agents, built per
// operation from the store. It is read-only once built.
type Hierarchy struct {
	byID     map[AgentID]Agent
	children map[AgentID][]AgentID
}

// NewHierarchy indexes agents by id and parent.
func NewHierarchy(agents []Agent) *Hierarchy {
	h := &Hierarchy{
		byID:     make(map[AgentID]Agent, len(agents)),
		children: make(map[AgentID][]AgentID),
	}
	for _, a := range agents {
		h.byID[a.ID] = a
		if a.ParentID != nil {
			h.children[*a.ParentID] = append(h.children[*a.ParentID], a.ID)
		}
	}
	return h
}

// Get returns the agent with the given id.
func (h *Hierarchy) Get(id AgentID) (Agent, bool) {
	a, ok := h.byID[id]
	return a, ok
}

// Agents returns all indexed agents in unspecified order.
func (h *Hierarchy) Agents() []Agent {
	out := make([]Agent, 0, len(h.byID))
	for _, a := range h.byID {
		out = append(out, a)
	}
	return out
}

// ChildrenOf returns the direct reports of an agent.
func (h *Hierarchy) ChildrenOf(id AgentID) []Agent {
	ids := h.children[id]
	out := make([]Agent, 0, len(ids))
	for _, childID := range ids {
		out = append(out, h.byID[childID])
	}
	return out
}

// Upline walks parent links from the agent's parent to the root,
// nearest first. The walk is bounded by MaxLevel hops so a corrupted
// parent chain cannot loop forever.
func (h *Hierarchy) Upline(id AgentID) []Agent {
	var chain []Agent
	current, ok := h.byID[id]
	if !ok {
		return nil
	}
	for hops := 0; current.ParentID != nil && hops < int(MaxLevel); hops++ {
		parent, ok := h.byID[*current.ParentID]
		if !ok {
			break
		}
		chain = append(chain, parent)
		current = parent
	}
	return chain
}

// DownlineIDs returns the agent and every descendant, iteratively via a
// work stack.
func (h *Hierarchy) DownlineIDs(id AgentID) []AgentID {
	seen := map[AgentID]bool{}
	stack := []AgentID{id}
	var out []AgentID
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		stack = append(stack, h.children[cur]...)
	}
	return out
}

// ValidateLink checks the chain invariants for an agent at the given
// level reporting to parentID (nil for roots). selfID is the agent being
// created or updated; zero for creates.
func (h *Hierarchy) ValidateLink(selfID AgentID, level Level, parentID *AgentID) error {
	if !level.Valid() {
		return &ValidationError{Field: "level", Message: "must be 1 (Agent), 2 (Team Lead), 3 (Manager), or 4 (Director)"}
	}

	if parentID == nil {
		if level != MaxLevel {
			return &HierarchyError{AgentID: selfID, Rule: fmt.Sprintf("level %d requires a parent; only %s (level %d) has none", level, MaxLevel, MaxLevel)}
		}
		return nil
	}

	if level == MaxLevel {
		return &HierarchyError{AgentID: selfID, Rule: "a Director cannot have a parent"}
	}
	if selfID != 0 && *parentID == selfID {
		return &HierarchyError{AgentID: selfID, Rule: "agent cannot be its own parent"}
	}

	parent, ok := h.byID[*parentID]
	if !ok {
		return fmt.Errorf("parent %d: %w", *parentID, ErrAgentNotFound)
	}
	if parent.Level != level+1 {
		return &HierarchyError{AgentID: selfID, Rule: fmt.Sprintf("parent must be level %d, got level %d", level+1, parent.Level)}
	}

	// Re-parenting under a descendant would create a cycle.
	if selfID != 0 {
		for _, id := range h.DownlineIDs(selfID) {
			if id == *parentID {
				return &HierarchyError{AgentID: selfID, Rule: "parent cannot be a descendant"}
			}
		}
	}
	return nil
}

// ValidateChildren checks that every current child still sits exactly one
// level below a proposed new level.
func (h *Hierarchy) ValidateChildren(id AgentID, level Level) error {
	for _, childID := range h.children[id] {
		child := h.byID[childID]
		if child.Level != level-1 {
			return &HierarchyError{AgentID: id, Rule: fmt.Sprintf("child %q is level %d; children of a level-%d agent must be level %d", child.Name, child.Level, level, level-1)}
		}
	}
	return nil
}

// VolumeScope returns the agent ids whose sales count toward this agent's
// bonus volume: personal sales for level 1, the full downline (including
// self) for levels 2..4.
func (h *Hierarchy) VolumeScope(a Agent) []AgentID {
	if a.Level == LevelAgent {
		return []AgentID{a.ID}
	}
	return h.DownlineIDs(a.ID)
}
