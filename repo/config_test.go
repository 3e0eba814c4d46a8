package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tempDir := t.TempDir()

	r, err := Load(tempDir)
	require.Nil(t, err)
	assert.True(t, Exist(filepath.Join(tempDir, cfgFileName)))
	assert.Equal(t, DefaultConfig(tempDir), r.Config)

	r.Config.Session.Administrator = "0x110000000000000000000000000000000000ffff"
	r.Config.RPC.Listen = "127.0.0.1:0"
	require.Nil(t, r.Flush())

	r, err = Load(tempDir)
	require.Nil(t, err)
	assert.Equal(t, "127.0.0.1:0", r.Config.RPC.Listen)
	assert.Equal(t, common.HexToAddress("0x110000000000000000000000000000000000ffff"), r.Config.AdministratorAddress())
	assert.Equal(t, common.HexToAddress(DefaultDeployer), r.Config.DeployerAddress())
	assert.Equal(t, filepath.Join(tempDir, "journal"), r.Config.JournalPath())

	str, err := MarshalConfig(r.Config)
	require.Nil(t, err)
	t.Logf("config:\n%s", str)
}

func TestLoadWithEnv(t *testing.T) {
	tempDir := t.TempDir()
	_, err := Load(tempDir)
	require.Nil(t, err)

	t.Setenv("VOTING_SESSION_DEPLOYER", "0x220000000000000000000000000000000000ffff")
	t.Setenv("VOTING_LOG_LEVEL", "debug")

	r, err := Load(tempDir)
	require.Nil(t, err)
	assert.Equal(t, common.HexToAddress("0x220000000000000000000000000000000000ffff"), r.Config.DeployerAddress())
	assert.Equal(t, r.Config.DeployerAddress(), r.Config.AdministratorAddress())
	assert.Equal(t, "debug", r.Config.Log.Level)
}

func TestLoadInvalid(t *testing.T) {
	tempDir := t.TempDir()
	_, err := Load(tempDir)
	require.Nil(t, err)

	t.Setenv("VOTING_SESSION_ADMINISTRATOR", "not-an-address")
	_, err = Load(tempDir)
	assert.NotNil(t, err)

	cfg := DefaultConfig(tempDir)
	cfg.Journal.Dir = ""
	assert.NotNil(t, cfg.Validate())
	cfg.Journal.Enable = false
	assert.Nil(t, cfg.Validate())
}

func TestLoadRepoRootFromEnv(t *testing.T) {
	p, err := LoadRepoRootFromEnv("/tmp/voting")
	require.Nil(t, err)
	assert.Equal(t, "/tmp/voting", p)

	t.Setenv(rootPathEnvVar, "/tmp/voting-env")
	p, err = LoadRepoRootFromEnv("")
	require.Nil(t, err)
	assert.Equal(t, "/tmp/voting-env", p)

	require.Nil(t, os.Unsetenv(rootPathEnvVar))
	p, err = LoadRepoRootFromEnv("")
	require.Nil(t, err)
	assert.Equal(t, ".voting", filepath.Base(p))
}

func TestCheckWritable(t *testing.T) {
	tempDir := t.TempDir()
	assert.Nil(t, CheckWritable(tempDir))
	assert.Nil(t, CheckWritable(filepath.Join(tempDir, "sub")))
	assert.True(t, Exist(filepath.Join(tempDir, "sub")))
}

func TestCheckWritableNoPermission(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}

	locked := filepath.Join(t.TempDir(), "locked")
	require.Nil(t, os.Mkdir(locked, 0755))
	require.Nil(t, os.Chmod(locked, 0))
	t.Cleanup(func() {
		os.Chmod(locked, 0755)
	})

	dir := filepath.Join(locked, "sub")
	err := CheckWritable(dir)
	require.NotNil(t, err)
	assert.Equal(t, "cannot write to "+dir+", incorrect permissions", err.Error())
}
