// Package config loads membridge's environment-driven configuration
// (spec §6): object-store target, project identity, lock/leadership
// policy, and retention. There is no config file; every setting is an
// environment variable with a documented default.
package config

import (
	"os"
	"strconv"
	"time"
)

// Store holds the object-store connection parameters.
type Store struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Lock holds the advisory lock policy.
type Lock struct {
	TTLSeconds   int
	GraceSeconds int
	Force        bool
}

// Leadership holds the lease policy.
type Leadership struct {
	Enabled                 bool
	LeaseSeconds            int
	ConfiguredPrimary       string
	AllowSecondaryPush      bool
	AllowPrimaryPullOverride bool
}

// Retention holds safety-backup eviction policy.
type Retention struct {
	MaxDays  int
	MaxCount int
}

// Config is the full process configuration for an agent-side sync
// invocation.
type Config struct {
	Store          Store
	Lock           Lock
	Leadership     Leadership
	Retention      Retention
	ProjectName    string
	DBPath         string
	NoRestartWorker bool
	NodeID         string
	ServerURL      string
	HeartbeatInterval time.Duration
	AdminKey       string
	AgentKey       string
}

// Load reads configuration from the real process environment.
func Load() Config {
	return LoadWithEnv(os.Getenv)
}

// LoadWithEnv reads configuration using getenv, so tests can supply an
// isolated environment without touching the process's own.
func LoadWithEnv(getenv func(string) string) Config {
	return Config{
		Store: Store{
			Endpoint:  getenv("MINIO_ENDPOINT"),
			AccessKey: getenv("MINIO_ACCESS_KEY"),
			SecretKey: getenv("MINIO_SECRET_KEY"),
			Bucket:    getenv("MINIO_BUCKET"),
			Region:    orDefault(getenv("MINIO_REGION"), "us-east-1"),
			UseSSL:    boolEnv(getenv, "MINIO_USE_SSL", false),
		},
		Lock: Lock{
			TTLSeconds:   intEnv(getenv, "LOCK_TTL_SECONDS", 7200),
			GraceSeconds: intEnv(getenv, "STALE_LOCK_GRACE_SECONDS", 60),
			Force:        boolEnv(getenv, "FORCE_PUSH", false),
		},
		Leadership: Leadership{
			Enabled:                  boolEnv(getenv, "LEADERSHIP_ENABLED", true),
			LeaseSeconds:             intEnv(getenv, "LEADERSHIP_LEASE_SECONDS", 3600),
			ConfiguredPrimary:        getenv("PRIMARY_NODE_ID"),
			AllowSecondaryPush:       boolEnv(getenv, "ALLOW_SECONDARY_PUSH", false),
			AllowPrimaryPullOverride: boolEnv(getenv, "ALLOW_PRIMARY_PULL_OVERRIDE", false),
		},
		Retention: Retention{
			MaxDays:  intEnv(getenv, "PULL_BACKUP_MAX_DAYS", 14),
			MaxCount: intEnv(getenv, "PULL_BACKUP_MAX_COUNT", 50),
		},
		ProjectName:       getenv("CLAUDE_PROJECT_ID"),
		DBPath:            getenv("CLAUDE_MEM_DB"),
		NoRestartWorker:   boolEnv(getenv, "MEMBRIDGE_NO_RESTART_WORKER", false),
		NodeID:            getenv("NODE_ID"),
		ServerURL:         getenv("SERVER_URL"),
		HeartbeatInterval: time.Duration(intEnv(getenv, "HEARTBEAT_INTERVAL_SECONDS", 10)) * time.Second,
		AdminKey:          orDefault(getenv("MEMBRIDGE_ADMIN_KEY"), getenv("MEMBRIDGE_SERVER_ADMIN_KEY")),
		AgentKey:          getenv("MEMBRIDGE_AGENT_KEY"),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intEnv(getenv func(string) string, key string, def int) int {
	v := getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolEnv(getenv func(string) string, key string, def bool) bool {
	v := getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
