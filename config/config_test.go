package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFlagsDefaults(t *testing.T) {
	a := require.New(t)

	cfg, err := ParseFlags(nil)
	a.NoError(err)
	a.Equal(8080, cfg.Port)
	a.Equal("data", cfg.StorageDir)
	a.Equal(StoreJSON, cfg.StoreBackend)
	a.Equal(uint8(1), cfg.Difficulty)
	a.Empty(cfg.Proposals)
	a.Equal("info", cfg.LogLevel)
}

func TestParseFlagsEnvVars(t *testing.T) {
	a := require.New(t)
	t.Setenv("PORT", "9000")
	t.Setenv("ELECTION_STORE", "sqlite")
	t.Setenv("ELECTION_PROPOSALS", "Proposal 1, Proposal 2,,")
	t.Setenv("ELECTION_VOTING_PERIOD", "2h")
	t.Setenv("LOG_JSON", "true")

	cfg, err := ParseFlags(nil)
	a.NoError(err)
	a.Equal(9000, cfg.Port)
	a.Equal(StoreSQLite, cfg.StoreBackend)
	a.Equal([]string{"Proposal 1", "Proposal 2"}, cfg.Proposals)
	a.Equal(2*time.Hour, cfg.VotingPeriod)
	a.True(cfg.LogJSON)
}

func TestParseFlagsCLIOverridesEnv(t *testing.T) {
	t.Setenv("PORT", "9000")

	cfg, err := ParseFlags([]string{"-port", "8081"})
	require.NoError(t, err)
	require.Equal(t, 8081, cfg.Port)
}

func TestParseFlagsInvalid(t *testing.T) {
	cases := [][]string{
		{"-difficulty", "256"},
		{"-difficulty", "-1"},
		{"-store", "postgres"},
		{"-port", "70000"},
		{"-start", "200", "-end", "100"},
		{"-queue-size", "0"},
		{"-paillier-bits", "64"},
	}
	for _, args := range cases {
		_, err := ParseFlags(args)
		require.Error(t, err, "%v", args)
	}

	t.Setenv("ELECTION_QUEUE_SIZE", "many")
	_, err := ParseFlags(nil)
	require.ErrorContains(t, err, "ELECTION_QUEUE_SIZE")
}

func TestSchedule(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	cfg := Config{RegistrationPeriod: time.Hour, VotingPeriod: 2 * time.Hour}
	start, end := cfg.Schedule(now)
	require.Equal(t, uint64(1_700_003_600), start)
	require.Equal(t, uint64(1_700_010_800), end)

	cfg.StartTime = 1_800_000_000
	cfg.EndTime = 1_800_000_600
	start, end = cfg.Schedule(now)
	require.Equal(t, uint64(1_800_000_000), start)
	require.Equal(t, uint64(1_800_000_600), end)
}

func TestLoadEnv(t *testing.T) {
	require.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ELECTION_DIFFICULTY=2\n"), 0600))
	t.Setenv("ELECTION_DIFFICULTY", "")
	os.Unsetenv("ELECTION_DIFFICULTY")

	require.NoError(t, LoadEnv(path))
	cfg, err := ParseFlags(nil)
	require.NoError(t, err)
	require.Equal(t, uint8(2), cfg.Difficulty)
}
