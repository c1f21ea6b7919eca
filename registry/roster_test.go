package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func writeRoster(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadRoster(t *testing.T) {
	a := require.New(t)
	path := writeRoster(t, `{"shareholders": [
		{"name": " Fulano ", "address": "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", "shares": 10},
		{"name": "Beltrano", "address": "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc", "shares": 1}
	]}`)

	r, err := LoadRoster(path)
	a.NoError(err)
	a.Equal(2, r.Len())

	entries := r.Entries()
	a.Equal("Fulano", entries[0].Name)
	a.Equal(uint64(10), entries[0].Shares)

	a.Equal("Beltrano", entries[1].Name)
	a.Equal(common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"), common.HexToAddress(entries[1].Address))

	// Entries hands out a copy.
	entries[0].Shares = 99
	a.Equal(uint64(10), r.Entries()[0].Shares)
}

func TestLoadRosterRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"missing name":   `{"shareholders":[{"name":"","address":"0x70997970C51812dc3A010C7d01b50e0d17dc79C8","shares":1}]}`,
		"bad address":    `{"shareholders":[{"name":"A","address":"0x1234","shares":1}]}`,
		"zero shares":    `{"shareholders":[{"name":"A","address":"0x70997970C51812dc3A010C7d01b50e0d17dc79C8","shares":0}]}`,
		"duplicate":      `{"shareholders":[{"name":"A","address":"0x70997970C51812dc3A010C7d01b50e0d17dc79C8","shares":1},{"name":"B","address":"0x70997970c51812dc3a010c7d01b50e0d17dc79c8","shares":2}]}`,
		"malformed json": `{"shareholders":`,
	}
	for name, body := range cases {
		_, err := LoadRoster(writeRoster(t, body))
		require.Error(t, err, name)
	}

	_, err := LoadRoster(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
