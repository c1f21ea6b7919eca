package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"election-ledger/logging"
	"election-ledger/models"
)

const (
	snapshotPattern    = "election_snapshot_*.json"
	snapshotTimeLayout = "20060102150405"
	snapshotsKept      = 5
)

// SnapshotStorage keeps the most recent election snapshots as timestamped
// files named election_snapshot_<time>_<height>.json.
type SnapshotStorage struct {
	dataDir string
	mutex   sync.RWMutex
	log     logging.Logger
}

type snapshotFile struct {
	path      string
	timestamp int64
	height    uint64
}

type snapshotFiles []snapshotFile

func (f snapshotFiles) Len() int { return len(f) }
// Less orders by ledger height; the wall clock only breaks ties.
func (f snapshotFiles) Less(i, j int) bool {
	if f[i].height != f[j].height {
		return f[i].height < f[j].height
	}
	return f[i].timestamp < f[j].timestamp
}
func (f snapshotFiles) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func NewSnapshotStorage(dataDir string, log logging.Logger) (*SnapshotStorage, error) {
	absPath, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &SnapshotStorage{dataDir: absPath, log: log}, nil
}

// listFiles returns the snapshot files sorted lowest height first.
func (s *SnapshotStorage) listFiles() (snapshotFiles, error) {
	files, err := filepath.Glob(filepath.Join(s.dataDir, snapshotPattern))
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	var out snapshotFiles
	for _, file := range files {
		base := filepath.Base(file)
		parts := strings.Split(strings.TrimSuffix(base, ".json"), "_")
		if len(parts) != 4 {
			continue
		}
		ts, err := time.Parse(snapshotTimeLayout, parts[2])
		if err != nil {
			s.log.Warnf("Invalid timestamp in filename %s: %v", base, err)
			continue
		}
		height, err := strconv.ParseUint(parts[3], 10, 64)
		if err != nil {
			s.log.Warnf("Invalid height in filename %s: %v", base, err)
			continue
		}
		out = append(out, snapshotFile{path: file, timestamp: ts.Unix(), height: height})
	}
	sort.Sort(out)
	return out, nil
}

// LoadLatest returns the snapshot with the greatest height, or nil if none
// is stored.
func (s *SnapshotStorage) LoadLatest() (*models.Snapshot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	latest := files[len(files)-1].path

	data, err := os.ReadFile(latest)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", latest, err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", latest, err)
	}

	s.log.Infof("Loaded snapshot at height %d from %s", snap.Height, latest)
	return &snap, nil
}

// Save writes snap and removes all but the highest snapshots.
func (s *SnapshotStorage) Save(snap *models.Snapshot) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	name := fmt.Sprintf("election_snapshot_%s_%d.json", time.Now().UTC().Format(snapshotTimeLayout), snap.Height)
	filename := filepath.Join(s.dataDir, name)

	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	tempPath := filename + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tempPath, filename); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	if err := s.cleanupOldFiles(snapshotsKept); err != nil {
		s.log.Warnf("Failed to cleanup old snapshots: %v", err)
	}

	s.log.Debugf("Saved snapshot at height %d to %s", snap.Height, filename)
	return nil
}

func (s *SnapshotStorage) cleanupOldFiles(keep int) error {
	files, err := s.listFiles()
	if err != nil {
		return err
	}
	if len(files) <= keep {
		return nil
	}

	// Remove lower files, keeping the highest 'keep' files
	for i := 0; i < len(files)-keep; i++ {
		if err := os.Remove(files[i].path); err != nil {
			s.log.Warnf("Failed to remove old snapshot %s: %v", files[i].path, err)
		}
	}
	return nil
}
