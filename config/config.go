// Package config parses the server configuration from command-line flags,
// falling back to environment variables (optionally loaded from a .env file).
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
)

type Config struct {
	Port         int
	StorageDir   string
	StoreBackend string
	Difficulty   uint8

	// StartTime and EndTime are Unix seconds. When zero they are derived from
	// RegistrationPeriod and VotingPeriod at first deployment.
	StartTime          uint64
	EndTime            uint64
	RegistrationPeriod time.Duration
	VotingPeriod       time.Duration
	Proposals          []string

	RosterFile       string
	QueueSize        int
	SnapshotInterval time.Duration
	PaillierKeySize  int

	LogLevel string
	LogJSON  bool
}

// envNames maps each flag to the environment variable consulted when the
// flag is not given on the command line.
var envNames = map[string]string{
	"port":                "PORT",
	"storage":             "ELECTION_STORAGE_DIR",
	"store":               "ELECTION_STORE",
	"difficulty":          "ELECTION_DIFFICULTY",
	"start":               "ELECTION_START_TIME",
	"end":                 "ELECTION_END_TIME",
	"registration-period": "ELECTION_REGISTRATION_PERIOD",
	"voting-period":       "ELECTION_VOTING_PERIOD",
	"proposals":           "ELECTION_PROPOSALS",
	"roster":              "ELECTION_ROSTER_FILE",
	"queue-size":          "ELECTION_QUEUE_SIZE",
	"snapshot-interval":   "ELECTION_SNAPSHOT_INTERVAL",
	"paillier-bits":       "ELECTION_PAILLIER_BITS",
	"log-level":           "LOG_LEVEL",
	"log-json":            "LOG_JSON",
}

// LoadEnv loads variables from a .env file without overriding ones already
// set. A missing file is not an error.
func LoadEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ParseFlags parses args, applies environment fallbacks and validates the result.
func ParseFlags(args []string) (Config, error) {
	var (
		cfg        Config
		difficulty int
		proposals  string
	)

	flags := flag.NewFlagSet("election-ledger", flag.ContinueOnError)
	flags.IntVar(&cfg.Port, "port", 8080, "Server port")
	flags.StringVar(&cfg.StorageDir, "storage", "data", "Directory for ledger storage")
	flags.StringVar(&cfg.StoreBackend, "store", StoreJSON, "Block store backend (json or sqlite)")
	flags.IntVar(&difficulty, "difficulty", 1, "Mining difficulty in leading zero bytes (0-255)")
	flags.Uint64Var(&cfg.StartTime, "start", 0, "Voting start time (Unix seconds)")
	flags.Uint64Var(&cfg.EndTime, "end", 0, "Voting end time (Unix seconds)")
	flags.DurationVar(&cfg.RegistrationPeriod, "registration-period", 24*time.Hour, "Registration length when -start is not set")
	flags.DurationVar(&cfg.VotingPeriod, "voting-period", 24*time.Hour, "Voting length when -end is not set")
	flags.StringVar(&proposals, "proposals", "", "Comma separated initial proposals")
	flags.StringVar(&cfg.RosterFile, "roster", "", "Shareholder roster JSON file imported during registration")
	flags.IntVar(&cfg.QueueSize, "queue-size", 100, "Transaction queue capacity")
	flags.DurationVar(&cfg.SnapshotInterval, "snapshot-interval", 5*time.Minute, "Interval between state snapshots (0 disables)")
	flags.IntVar(&cfg.PaillierKeySize, "paillier-bits", 1024, "Paillier key size for the sealed tally")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.BoolVar(&cfg.LogJSON, "log-json", false, "Log in JSON format")

	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	set := make(map[string]bool)
	flags.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for name, env := range envNames {
		if set[name] {
			continue
		}
		if v, ok := os.LookupEnv(env); ok && v != "" {
			if err := flags.Set(name, v); err != nil {
				return Config{}, fmt.Errorf("invalid %s env variable: %w", env, err)
			}
		}
	}

	if difficulty < 0 || difficulty > 255 {
		return Config{}, errors.New("difficulty must be between 0 and 255")
	}
	cfg.Difficulty = uint8(difficulty)
	cfg.Proposals = splitList(proposals)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.StoreBackend != StoreJSON && c.StoreBackend != StoreSQLite {
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.StartTime != 0 && c.EndTime != 0 && c.StartTime >= c.EndTime {
		return errors.New("start time must be before end time")
	}
	if c.RegistrationPeriod < 0 || c.VotingPeriod <= 0 {
		return errors.New("registration and voting periods must be positive")
	}
	if c.QueueSize <= 0 {
		return errors.New("queue size must be positive")
	}
	if c.PaillierKeySize < 256 {
		return errors.New("paillier key size must be at least 256 bits")
	}
	return nil
}

// Schedule resolves the voting window for a new deployment created at now.
func (c Config) Schedule(now time.Time) (start, end uint64) {
	start = c.StartTime
	if start == 0 {
		start = uint64(now.Add(c.RegistrationPeriod).Unix())
	}
	end = c.EndTime
	if end == 0 {
		end = start + uint64(c.VotingPeriod/time.Second)
	}
	return start, end
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
