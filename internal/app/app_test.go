package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSeedsWorkspace(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(context.Background(), Options{Workspace: dir, LogMode: "production"})
	require.NoError(t, err)
	defer rt.Close()

	_, ok := rt.Engine.Choices.Lookup("contract_status", "DRAFT")
	assert.True(t, ok)
	profiles, err := rt.Engine.Repo.ListProfiles(context.Background())
	require.NoError(t, err)
	assert.Len(t, profiles, 5)
}

func TestOpenReadsWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := `conversion:
  initial_contract_status: ACTIVE
  contract_number_prefix: BL
profiles:
  admin:
    permissions: [user.admin]
choices:
  contract_status:
    - {code: ACTIVE}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "buildline.yml"), []byte(cfg), 0o644))
	rt, err := Open(context.Background(), Options{Workspace: dir})
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, "BL", rt.Config.Conversion.ContractNumberPrefix)
	assert.Equal(t, "/v1", rt.Config.Server.BasePath)
	c, ok := rt.Engine.Choices.Lookup("contract_status", "ACTIVE")
	require.True(t, ok)
	assert.Equal(t, "ACTIVE", c.Label)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	_, err := Open(context.Background(), Options{Workspace: t.TempDir(), ConfigPath: filepath.Join(t.TempDir(), "missing.yml")})
	assert.Error(t, err)
}
