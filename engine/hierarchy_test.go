package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/engine"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

func pid(id engine.AgentID) *engine.AgentID { return &id }

// chainAgents builds one full chain: Director(4) <- Manager(3) <- Lead(2)
// <- two Agents(1).
func chainAgents() []engine.Agent {
	return []engine.Agent{
		{ID: 1, Name: "Director", Level: engine.LevelDirector},
		{ID: 2, Name: "Manager", Level: engine.LevelManager, ParentID: pid(1)},
		{ID: 3, Name: "Lead", Level: engine.LevelTeamLead, ParentID: pid(2)},
		{ID: 4, Name: "Alice", Level: engine.LevelAgent, ParentID: pid(3)},
		{ID: 5, Name: "Ben", Level: engine.LevelAgent, ParentID: pid(3)},
	}
}

// =============================================================================
// UPLINE / DOWNLINE WALKS
// =============================================================================

func TestHierarchy_Upline_NearestFirst(t *testing.T) {
	h := engine.NewHierarchy(chainAgents())

	upline := h.Upline(4)
	require.Len(t, upline, 3)
	assert.Equal(t, engine.AgentID(3), upline[0].ID, "team lead first")
	assert.Equal(t, engine.AgentID(2), upline[1].ID, "manager second")
	assert.Equal(t, engine.AgentID(1), upline[2].ID, "director last")
}

func TestHierarchy_Upline_DirectorHasNone(t *testing.T) {
	h := engine.NewHierarchy(chainAgents())
	assert.Empty(t, h.Upline(1))
}

func TestHierarchy_DownlineIDs_IncludesSelf(t *testing.T) {
	h := engine.NewHierarchy(chainAgents())

	downline := h.DownlineIDs(3)
	assert.ElementsMatch(t, []engine.AgentID{3, 4, 5}, downline)

	all := h.DownlineIDs(1)
	assert.ElementsMatch(t, []engine.AgentID{1, 2, 3, 4, 5}, all)
}

func TestHierarchy_VolumeScope_PersonalForAgents(t *testing.T) {
	// GIVEN: A full chain
	h := engine.NewHierarchy(chainAgents())
	alice, ok := h.Get(4)
	require.True(t, ok)
	lead, ok := h.Get(3)
	require.True(t, ok)

	// THEN: Level 1 counts only personal sales, level 2+ the whole downline
	assert.Equal(t, []engine.AgentID{4}, h.VolumeScope(alice))
	assert.ElementsMatch(t, []engine.AgentID{3, 4, 5}, h.VolumeScope(lead))
}

// =============================================================================
// LINK VALIDATION
// =============================================================================

func TestHierarchy_ValidateLink_ParentOneLevelAbove(t *testing.T) {
	h := engine.NewHierarchy(chainAgents())

	// Agent (1) under Lead (2): ok
	assert.NoError(t, h.ValidateLink(0, engine.LevelAgent, pid(3)))

	// Agent (1) under Manager (3): skips a level
	err := h.ValidateLink(0, engine.LevelAgent, pid(2))
	assert.ErrorIs(t, err, engine.ErrHierarchyViolation)

	// Lead (2) under Director (4): skips a level
	err = h.ValidateLink(0, engine.LevelTeamLead, pid(1))
	assert.ErrorIs(t, err, engine.ErrHierarchyViolation)
}

func TestHierarchy_ValidateLink_DirectorTakesNoParent(t *testing.T) {
	h := engine.NewHierarchy(chainAgents())

	assert.NoError(t, h.ValidateLink(0, engine.LevelDirector, nil))

	err := h.ValidateLink(0, engine.LevelDirector, pid(2))
	assert.ErrorIs(t, err, engine.ErrHierarchyViolation)
}

func TestHierarchy_ValidateLink_NonDirectorRequiresParent(t *testing.T) {
	h := engine.NewHierarchy(chainAgents())

	for _, level := range []engine.Level{engine.LevelAgent, engine.LevelTeamLead, engine.LevelManager} {
		err := h.ValidateLink(0, level, nil)
		assert.ErrorIs(t, err, engine.ErrHierarchyViolation, "level %d without parent", level)
	}
}

func TestHierarchy_ValidateLink_MissingParent(t *testing.T) {
	h := engine.NewHierarchy(chainAgents())

	err := h.ValidateLink(0, engine.LevelAgent, pid(99))
	assert.Error(t, err)
}

func TestHierarchy_ValidateLink_RejectsSelfAndDescendants(t *testing.T) {
	// GIVEN: Manager 2 with Lead 3 below
	h := engine.NewHierarchy(chainAgents())

	// WHEN: Re-parenting the manager onto itself or its own descendant
	selfErr := h.ValidateLink(2, engine.LevelManager, pid(2))
	cycleErr := h.ValidateLink(2, engine.LevelAgent, pid(3))

	// THEN: Both are hierarchy violations
	assert.ErrorIs(t, selfErr, engine.ErrHierarchyViolation)
	assert.ErrorIs(t, cycleErr, engine.ErrHierarchyViolation)
}

func TestHierarchy_ValidateChildren(t *testing.T) {
	h := engine.NewHierarchy(chainAgents())

	// Lead 3 has level-1 children; staying at level 2 is fine
	assert.NoError(t, h.ValidateChildren(3, engine.LevelTeamLead))

	// Promoting the lead to Manager would orphan its level-1 children
	err := h.ValidateChildren(3, engine.LevelManager)
	assert.ErrorIs(t, err, engine.ErrHierarchyViolation)

	// Leaf agents can change freely
	assert.NoError(t, h.ValidateChildren(4, engine.LevelTeamLead))
}
