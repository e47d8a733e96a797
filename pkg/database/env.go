package database

import (
	"userlytics/pkg/config"
)

// ConfigFromEnv reads connection settings from the DATABASE_* variables,
// falling back to local-development defaults.
func ConfigFromEnv() DBConfig {
	return DBConfig{
		Host:         config.Get("DATABASE_HOST", "localhost"),
		Port:         config.GetInt("DATABASE_PORT", 5432),
		User:         config.Get("DATABASE_USER", "postgres"),
		Password:     config.Get("DATABASE_PASSWORD", "postgres"),
		DBName:       config.Get("DATABASE_NAME", "analytics"),
		SSLMode:      config.Get("DATABASE_SSLMODE", "disable"),
		ReplicaHosts: config.GetList("DATABASE_REPLICA_HOSTS"),
	}
}
