// Package daemon wires together the naming, session, I/O, and topology
// layers into one runnable process: a key=value config-file loader plus
// an option-struct-with-defaults resolver for the GNS daemon's
// bind/topology/lookup surface.
package daemon

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnserr"
)

// Defaults for options the daemon's configuration surface enumerates.
const (
	DefaultTargetConnectionCount  = 16
	DefaultMinimumFriendCount     = 0
	DefaultMaxParallelBackgroundQ = 500
	DefaultDHTReplicationLevel    = 5
	DefaultLookupTimeoutSeconds   = 10
	DefaultDHTOpTimeoutSeconds    = 60
	DefaultLogLevel               = "info"
)

// Config holds the fully-resolved daemon configuration.
type Config struct {
	ZoneKeyPath string
	BindTo      string
	DisableV6   bool
	DisableBroadcast bool

	FriendsOnly           bool
	MinimumFriendCount    int
	TargetConnectionCount int
	FriendsFilePath       string

	MaxParallelBackgroundQueries int
	DHTReplicationLevel          int
	LookupTimeoutSeconds         int
	DHTOpTimeoutSeconds          int

	NamecacheRedisAddr string
	LogLevel           string
}

// Opts holds the raw, possibly-defaulted inputs NewConfig resolves into a
// Config.
type Opts struct {
	ZoneKeyPath string
	BindTo      string
	DisableV6   bool
	DisableBroadcast bool

	FriendsOnly           bool
	MinimumFriendCount    int
	TargetConnectionCount int
	FriendsFilePath       string

	MaxParallelBackgroundQueries int
	DHTReplicationLevel          int
	LookupTimeoutSeconds         int
	DHTOpTimeoutSeconds          int

	NamecacheRedisAddr string
	LogLevel           string
}

// NewConfig resolves opts into a Config, applying the package defaults.
func NewConfig(opts Opts) (*Config, error) {
	const op = "daemon.NewConfig"

	if opts.ZoneKeyPath == "" {
		return nil, gnserr.New(gnserr.KindConfigurationInvalid, op, fmt.Errorf("zone key path is required"))
	}

	cfg := &Config{
		ZoneKeyPath:           opts.ZoneKeyPath,
		BindTo:                opts.BindTo,
		DisableV6:             opts.DisableV6,
		DisableBroadcast:      opts.DisableBroadcast,
		FriendsOnly:           opts.FriendsOnly,
		MinimumFriendCount:    opts.MinimumFriendCount,
		TargetConnectionCount: opts.TargetConnectionCount,
		FriendsFilePath:       opts.FriendsFilePath,
		MaxParallelBackgroundQueries: opts.MaxParallelBackgroundQueries,
		DHTReplicationLevel:          opts.DHTReplicationLevel,
		LookupTimeoutSeconds:         opts.LookupTimeoutSeconds,
		DHTOpTimeoutSeconds:          opts.DHTOpTimeoutSeconds,
		NamecacheRedisAddr:           opts.NamecacheRedisAddr,
		LogLevel:                     opts.LogLevel,
	}

	if cfg.TargetConnectionCount == 0 {
		cfg.TargetConnectionCount = DefaultTargetConnectionCount
	}
	if cfg.MaxParallelBackgroundQueries == 0 {
		cfg.MaxParallelBackgroundQueries = DefaultMaxParallelBackgroundQ
	}
	if cfg.DHTReplicationLevel == 0 {
		cfg.DHTReplicationLevel = DefaultDHTReplicationLevel
	}
	if cfg.LookupTimeoutSeconds == 0 {
		cfg.LookupTimeoutSeconds = DefaultLookupTimeoutSeconds
	}
	if cfg.DHTOpTimeoutSeconds == 0 {
		cfg.DHTOpTimeoutSeconds = DefaultDHTOpTimeoutSeconds
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	return cfg, nil
}

// LoadConfigFile loads key=value pairs from path, skipping blank lines and
// "#" comments. A missing file yields an empty map, not an error.
func LoadConfigFile(path string) (map[string]string, error) {
	const op = "daemon.LoadConfigFile"

	config := make(map[string]string)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, gnserr.New(gnserr.KindConfigurationInvalid, op, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			fmt.Printf("daemon: invalid config line %d in %s: %s\n", lineNum, path, line)
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
			(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
			value = value[1 : len(value)-1]
		}
		config[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, gnserr.New(gnserr.KindConfigurationInvalid, op, err)
	}
	return config, nil
}

// ParseBool parses a config-file boolean value ("true"/"false"/"1"/"0"/""),
// defaulting to false for an empty or absent value.
func ParseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// ParseInt parses a config-file integer value, returning def if value is
// empty or malformed.
func ParseInt(value string, def int) int {
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return n
}
