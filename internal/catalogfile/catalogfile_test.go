package catalogfile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simpleHouse = `
code: SIMPLE
name: Simple House
county: MIA
project_type: SINGLE_FAMILY
phases:
  - code: PREP
    name: Site preparation
    order: 1
    tasks:
      - code: CLEAR
        name: Clear lot
        order: 1
        duration_hours: 16
        cost: "1200.50"
        resources:
          - type: LABOR
            name: Crew
            unit: hour
            quantity: 16
            unit_cost: "45.25"
  - code: FOUND
    name: Foundation
    order: 2
    requires_inspection: true
    prerequisites: [PREP]
    tasks:
      - code: POUR
        name: Pour slab
        order: 1
`

func TestParseSimpleHouse(t *testing.T) {
	doc, err := Parse([]byte(simpleHouse))
	require.NoError(t, err)
	require.Len(t, doc.Phases, 2)
	assert.Equal(t, "PREP", doc.Phases[0].Code)
	assert.Equal(t, []string{"PREP"}, doc.Phases[1].Prerequisites)
	assert.True(t, doc.Phases[1].RequiresInspection)

	task := doc.Phases[0].Tasks[0]
	assert.True(t, decimal.RequireFromString("1200.50").Equal(task.Cost))
	assert.True(t, decimal.NewFromInt(16).Equal(task.DurationHours))
	require.Len(t, task.Resources, 1)
	assert.Equal(t, "LABOR", task.Resources[0].Type)
	assert.True(t, decimal.RequireFromString("45.25").Equal(task.Resources[0].UnitCost))
}

func TestValidateRejectsBrokenDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown phase prerequisite": `
code: X
name: X
county: C
project_type: T
phases:
  - {code: A, name: A, order: 1, prerequisites: [B]}
`,
		"duplicate phase order": `
code: X
name: X
county: C
project_type: T
phases:
  - {code: A, name: A, order: 1}
  - {code: B, name: B, order: 1}
`,
		"duplicate task code": `
code: X
name: X
county: C
project_type: T
phases:
  - code: A
    name: A
    order: 1
    tasks:
      - {code: T1, name: one, order: 1}
      - {code: T1, name: two, order: 2}
`,
		"missing county": `
code: X
name: X
project_type: T
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}
