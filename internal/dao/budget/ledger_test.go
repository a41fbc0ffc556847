package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daofund/internal/dao/models"
	dErrors "daofund/pkg/domain-errors"
)

func plans(amounts ...int64) []models.BudgetPlan {
	out := make([]models.BudgetPlan, len(amounts))
	for i, amount := range amounts {
		out[i] = models.BudgetPlan{Index: i, Phase: i + 1, Symbol: "ELF", Amount: amount}
	}
	return out
}

func TestValidateSequence(t *testing.T) {
	t.Run("accepts contiguous indices from zero", func(t *testing.T) {
		require.NoError(t, ValidateSequence(plans(100, 200, 300)))
	})

	t.Run("rejects empty plans", func(t *testing.T) {
		err := ValidateSequence(nil)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects gap in indices", func(t *testing.T) {
		p := plans(100, 200)
		p[1].Index = 2
		err := ValidateSequence(p)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects sequence not starting at zero", func(t *testing.T) {
		p := plans(100)
		p[0].Index = 1
		require.Error(t, ValidateSequence(p))
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		p := plans(100, 200)
		p[1].Amount = 0
		require.Error(t, ValidateSequence(p))
	})

	t.Run("rejects missing symbol", func(t *testing.T) {
		p := plans(100)
		p[0].Symbol = ""
		require.Error(t, ValidateSequence(p))
	})
}

func TestFund(t *testing.T) {
	t.Run("fills phases in index order", func(t *testing.T) {
		p := plans(100, 200)
		consumed, remainder := Fund(p, "ELF", 150)
		assert.Equal(t, int64(150), consumed)
		assert.Equal(t, int64(0), remainder)
		assert.Equal(t, int64(100), p[0].PaidIn)
		assert.Equal(t, int64(50), p[1].PaidIn)
	})

	t.Run("caps at the nominal amount and reports the excess", func(t *testing.T) {
		p := plans(100)
		consumed, remainder := Fund(p, "ELF", 130)
		assert.Equal(t, int64(100), consumed)
		assert.Equal(t, int64(30), remainder)
		assert.Equal(t, int64(100), p[0].PaidIn)
	})

	t.Run("double funding never exceeds the cap", func(t *testing.T) {
		p := plans(100)
		Fund(p, "ELF", 100)
		consumed, remainder := Fund(p, "ELF", 100)
		assert.Equal(t, int64(0), consumed)
		assert.Equal(t, int64(100), remainder)
		assert.Equal(t, int64(100), p[0].PaidIn)
	})

	t.Run("ignores phases of another symbol", func(t *testing.T) {
		p := plans(100, 100)
		p[1].Symbol = "BTC"
		consumed, remainder := Fund(p, "BTC", 150)
		assert.Equal(t, int64(100), consumed)
		assert.Equal(t, int64(50), remainder)
		assert.Equal(t, int64(0), p[0].PaidIn)
		assert.Equal(t, int64(100), p[1].PaidIn)
	})
}

func TestShortfallAndFunding(t *testing.T) {
	t.Run("shortfall tracks the unfunded remainder", func(t *testing.T) {
		p := plans(100, 200)
		assert.Equal(t, int64(300), Shortfall(p))
		Fund(p, "ELF", 120)
		assert.Equal(t, int64(180), Shortfall(p))
	})

	t.Run("fully funded only when every phase is at its cap", func(t *testing.T) {
		project := &models.Project{Plans: plans(100, 200)}
		assert.False(t, IsFullyFunded(project))
		Fund(project.Plans, "ELF", 300)
		assert.True(t, IsFullyFunded(project))
	})

	t.Run("project with no plans is never fully funded", func(t *testing.T) {
		assert.False(t, IsFullyFunded(&models.Project{}))
	})
}

func TestIsFullyDelivered(t *testing.T) {
	project := &models.Project{Plans: plans(100, 200)}
	assert.False(t, IsFullyDelivered(project))

	project.Plans[1].DeliverCommitID = "abc"
	assert.False(t, IsFullyDelivered(project), "cursor has not moved past the last phase")

	project.PhaseCursor = 2
	assert.True(t, IsFullyDelivered(project))
}

func TestAssignClaimant(t *testing.T) {
	t.Run("assigns and reports when all phases are claimed", func(t *testing.T) {
		project := &models.Project{Plans: plans(100, 200)}
		allClaimed, err := AssignClaimant(project, []int{0}, "alice")
		require.NoError(t, err)
		assert.False(t, allClaimed)

		allClaimed, err = AssignClaimant(project, []int{1}, "bob")
		require.NoError(t, err)
		assert.True(t, allClaimed)
	})

	t.Run("refuses an already claimed phase without partial writes", func(t *testing.T) {
		project := &models.Project{Plans: plans(100, 200)}
		_, err := AssignClaimant(project, []int{0}, "alice")
		require.NoError(t, err)

		_, err = AssignClaimant(project, []int{1, 0}, "bob")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
		assert.True(t, project.Plans[1].Claimant.IsNil(), "no phase assigned on conflict")
	})

	t.Run("unknown index is not found", func(t *testing.T) {
		project := &models.Project{Plans: plans(100)}
		_, err := AssignClaimant(project, []int{7}, "alice")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestClaimants(t *testing.T) {
	project := &models.Project{Plans: plans(1, 2, 3)}
	_, err := AssignClaimant(project, []int{0, 2}, "alice")
	require.NoError(t, err)
	_, err = AssignClaimant(project, []int{1}, "bob")
	require.NoError(t, err)

	claimants := Claimants(project)
	require.Len(t, claimants, 2)
	assert.Equal(t, "alice", claimants[0].String())
	assert.Equal(t, "bob", claimants[1].String())
}
