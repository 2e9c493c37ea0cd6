package main

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// config is the process configuration, read entirely from environment
// variables per the external-interfaces contract.
type config struct {
	Port        string
	NodeEnv     string
	FrontendURL string
	DatabasePath string
	BackupDir    string

	BackupIntervalHours int

	MDSURL             string
	MDSRefreshHours    int
	SessionGCMinutes   int
	AdminBackupEnabled bool
}

const defaultMDSURL = "https://mds.fidoalliance.org"

func loadConfig() (config, error) {
	c := config{
		Port:                getEnvDefault("PORT", "8080"),
		NodeEnv:             getEnvDefault("NODE_ENV", "development"),
		FrontendURL:         os.Getenv("FRONTEND_URL"),
		DatabasePath:        getEnvDefault("DATABASE_PATH", "./passkeys.db"),
		BackupDir:           getEnvDefault("BACKUP_DIR", "./backups"),
		BackupIntervalHours: 24,
		MDSURL:              getEnvDefault("MDS_URL", defaultMDSURL),
		MDSRefreshHours:     24,
		SessionGCMinutes:    5,
	}

	if v := os.Getenv("BACKUP_INTERVAL_HOURS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return config{}, fmt.Errorf("invalid BACKUP_INTERVAL_HOURS: %w", err)
		}
		c.BackupIntervalHours = n
	}
	if v := os.Getenv("MDS_REFRESH_HOURS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return config{}, fmt.Errorf("invalid MDS_REFRESH_HOURS: %w", err)
		}
		c.MDSRefreshHours = n
	}
	if v := os.Getenv("SESSION_GC_INTERVAL_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return config{}, fmt.Errorf("invalid SESSION_GC_INTERVAL_MINUTES: %w", err)
		}
		c.SessionGCMinutes = n
	}
	c.AdminBackupEnabled = c.NodeEnv != "production" || os.Getenv("ADMIN_BACKUP_ENABLED") == "true"

	return c, c.validate()
}

func (c config) validate() error {
	if c.NodeEnv == "production" && c.FrontendURL == "" {
		return fmt.Errorf("FRONTEND_URL is required when NODE_ENV=production")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH must not be empty")
	}
	return nil
}

func (c config) backupInterval() time.Duration {
	return time.Duration(c.BackupIntervalHours) * time.Hour
}

func (c config) mdsRefreshInterval() time.Duration {
	return time.Duration(c.MDSRefreshHours) * time.Hour
}

func (c config) sessionGCInterval() time.Duration {
	return time.Duration(c.SessionGCMinutes) * time.Minute
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
