// Package registry loads the shareholder roster used to bootstrap an
// election's registration phase.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Entry is one shareholder in the roster file.
type Entry struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Shares  uint64 `json:"shares"`
}

// Roster is an ordered, address-unique list of shareholders. It is
// immutable once loaded.
type Roster struct {
	entries []Entry
}

// LoadRoster reads {"shareholders": [...]} from path.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}

	var file struct {
		Shareholders []Entry `json:"shareholders"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roster: %w", err)
	}

	r := &Roster{}
	seen := make(map[common.Address]struct{}, len(file.Shareholders))
	for i, entry := range file.Shareholders {
		if err := r.add(entry, seen); err != nil {
			return nil, fmt.Errorf("invalid roster entry %d: %w", i, err)
		}
	}
	return r, nil
}

func (r *Roster) add(entry Entry, seen map[common.Address]struct{}) error {
	entry.Name = strings.TrimSpace(entry.Name)
	if entry.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !common.IsHexAddress(entry.Address) {
		return fmt.Errorf("invalid address %q", entry.Address)
	}
	if entry.Shares == 0 {
		return fmt.Errorf("shares must be positive")
	}

	addr := common.HexToAddress(entry.Address)
	if _, dup := seen[addr]; dup {
		return fmt.Errorf("duplicate address %s", addr.Hex())
	}
	seen[addr] = struct{}{}
	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns the roster in file order.
func (r *Roster) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Roster) Len() int {
	return len(r.entries)
}
