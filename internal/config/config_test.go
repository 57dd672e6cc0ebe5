package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, "DRAFT", cfg.Conversion.InitialContractStatus)
	assert.Len(t, cfg.Profiles["admin"].Permissions, len(Permissions))
	assert.Len(t, cfg.Choices["contract_status"], 4)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"missing admin": `
conversion: {initial_contract_status: DRAFT, contract_number_prefix: C}
profiles:
  viewer: {permissions: [project.read]}
`,
		"unknown permission": `
conversion: {initial_contract_status: DRAFT, contract_number_prefix: C}
profiles:
  admin: {permissions: [project.destroy]}
`,
		"duplicate choice": `
conversion: {initial_contract_status: DRAFT, contract_number_prefix: C}
profiles:
  admin: {permissions: []}
choices:
  contract_status: [{code: DRAFT}, {code: DRAFT}]
`,
		"webhook without url": `
conversion: {initial_contract_status: DRAFT, contract_number_prefix: C}
profiles:
  admin: {permissions: []}
webhooks: [{events: [lead.converted]}]
`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, "CTR", cfg.Conversion.ContractNumberPrefix)

	custom := `
server: {addr: ":9090"}
conversion: {initial_contract_status: ACTIVE, contract_number_prefix: HX}
profiles:
  admin: {permissions: [user.admin]}
choices:
  contract_status: [{code: ACTIVE, label: Active}, {code: DRAFT, active: false}]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "buildline.yml"), []byte(custom), 0o644))
	cfg, err = LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, "HX", cfg.Conversion.ContractNumberPrefix)
	assert.False(t, cfg.Choices["contract_status"][1].IsActive())
}
