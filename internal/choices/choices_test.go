package choices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildline/internal/domain"
)

func sampleTable() *Table {
	return NewTable([]domain.StatusChoice{
		{ID: 3, Domain: domain.ChoiceContractStatus, Code: "ACTIVE", SortOrder: 2, Active: true},
		{ID: 1, Domain: domain.ChoiceContractStatus, Code: "DRAFT", SortOrder: 1, Active: false},
		{ID: 2, Domain: domain.ChoiceContractStatus, Code: "SIGNED", SortOrder: 3, Active: true},
		{ID: 4, Domain: domain.ChoiceLeadSource, Code: "WEBSITE", SortOrder: 1, Active: false},
	})
}

func TestResolveExactMatch(t *testing.T) {
	res, err := sampleTable().Resolve(domain.ChoiceContractStatus, "SIGNED")
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, int64(2), res.Choice.ID)
}

func TestResolveFallsBackToFirstActive(t *testing.T) {
	tbl := sampleTable()
	for _, code := range []string{"DRAFT", "UNKNOWN"} {
		res, err := tbl.Resolve(domain.ChoiceContractStatus, code)
		require.NoError(t, err)
		assert.True(t, res.Fallback)
		assert.Equal(t, "ACTIVE", res.Choice.Code)
		assert.Equal(t, code, res.Requested)
	}
}

func TestResolveWithoutActiveChoiceFails(t *testing.T) {
	_, err := sampleTable().Resolve(domain.ChoiceLeadSource, "WEBSITE")
	assert.ErrorIs(t, err, ErrNoActiveChoice)
}

func TestLookupAndByID(t *testing.T) {
	tbl := sampleTable()
	c, ok := tbl.ByID(1)
	require.True(t, ok)
	assert.Equal(t, "DRAFT", c.Code)
	assert.False(t, tbl.IsActive(domain.ChoiceContractStatus, "DRAFT"))
	assert.True(t, tbl.IsActive(domain.ChoiceContractStatus, "ACTIVE"))
	assert.Len(t, tbl.Active(domain.ChoiceContractStatus), 2)
}
