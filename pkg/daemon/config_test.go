package daemon

import "testing"

func TestNewConfigAppliesDefaults(t *testing.T) {
	cfg, err := NewConfig(Opts{ZoneKeyPath: "/tmp/zone.key"})
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.TargetConnectionCount != DefaultTargetConnectionCount {
		t.Fatalf("TargetConnectionCount = %d, want %d", cfg.TargetConnectionCount, DefaultTargetConnectionCount)
	}
	if cfg.DHTReplicationLevel != DefaultDHTReplicationLevel {
		t.Fatalf("DHTReplicationLevel = %d, want %d", cfg.DHTReplicationLevel, DefaultDHTReplicationLevel)
	}
	if cfg.LookupTimeoutSeconds != DefaultLookupTimeoutSeconds {
		t.Fatalf("LookupTimeoutSeconds = %d, want %d", cfg.LookupTimeoutSeconds, DefaultLookupTimeoutSeconds)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("LogLevel = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
}

func TestNewConfigRequiresZoneKeyPath(t *testing.T) {
	if _, err := NewConfig(Opts{}); err == nil {
		t.Fatalf("expected error for missing zone key path")
	}
}

func TestNewConfigPreservesExplicitOverrides(t *testing.T) {
	cfg, err := NewConfig(Opts{
		ZoneKeyPath:           "/tmp/zone.key",
		TargetConnectionCount: 32,
		FriendsOnly:           true,
		DisableV6:             true,
	})
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.TargetConnectionCount != 32 || !cfg.FriendsOnly || !cfg.DisableV6 {
		t.Fatalf("explicit overrides not preserved: %+v", cfg)
	}
}

func TestLoadConfigFileMissingIsEmpty(t *testing.T) {
	cfg, err := LoadConfigFile("/nonexistent/path/gnsd.conf")
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if len(cfg) != 0 {
		t.Fatalf("expected empty config map, got %v", cfg)
	}
}

func TestParseBoolVariants(t *testing.T) {
	cases := map[string]bool{"true": true, "1": true, "yes": true, "false": false, "": false, "nonsense": false}
	for in, want := range cases {
		if got := ParseBool(in); got != want {
			t.Errorf("ParseBool(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseIntFallsBackOnMalformed(t *testing.T) {
	if got := ParseInt("not-a-number", 42); got != 42 {
		t.Fatalf("ParseInt malformed = %d, want 42", got)
	}
	if got := ParseInt("7", 42); got != 7 {
		t.Fatalf("ParseInt valid = %d, want 7", got)
	}
}
