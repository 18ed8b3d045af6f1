/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads the controller configuration from the environment.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/no8s/no8s/internal/store"
)

// Config is the full runtime configuration of the controller.
type Config struct {
	Database store.Config

	APIHost string
	APIPort int

	ReconcileInterval       time.Duration
	MaxConcurrentReconciles int
	DriftInterval           time.Duration
	BackoffBaseDelay        time.Duration
	BackoffMaxDelay         time.Duration
	ShutdownGrace           time.Duration

	EventQueueSize int

	CORSEnabled        bool
	CORSAllowedOrigins []string

	LogLevel int
}

// Load reads the configuration from environment variables, applying
// defaults for everything not set.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_NAME", "no8s")
	v.SetDefault("DB_USER", "no8s")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("API_HOST", "0.0.0.0")
	v.SetDefault("API_PORT", 8080)

	v.SetDefault("RECONCILE_INTERVAL", 60)
	v.SetDefault("MAX_CONCURRENT_RECONCILES", 5)
	v.SetDefault("DRIFT_INTERVAL", 300)
	v.SetDefault("BACKOFF_BASE_DELAY", 60)
	v.SetDefault("BACKOFF_MAX_DELAY", 61440)
	v.SetDefault("SHUTDOWN_GRACE", 30)

	v.SetDefault("EVENT_QUEUE_SIZE", 100)

	v.SetDefault("CORS_ENABLED", true)
	v.SetDefault("CORS_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("LOG_LEVEL", 0)

	return &Config{
		Database: store.Config{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		APIHost:                 v.GetString("API_HOST"),
		APIPort:                 v.GetInt("API_PORT"),
		ReconcileInterval:       time.Duration(v.GetInt("RECONCILE_INTERVAL")) * time.Second,
		MaxConcurrentReconciles: v.GetInt("MAX_CONCURRENT_RECONCILES"),
		DriftInterval:           time.Duration(v.GetInt("DRIFT_INTERVAL")) * time.Second,
		BackoffBaseDelay:        time.Duration(v.GetInt("BACKOFF_BASE_DELAY")) * time.Second,
		BackoffMaxDelay:         time.Duration(v.GetInt("BACKOFF_MAX_DELAY")) * time.Second,
		ShutdownGrace:           time.Duration(v.GetInt("SHUTDOWN_GRACE")) * time.Second,
		EventQueueSize:          v.GetInt("EVENT_QUEUE_SIZE"),
		CORSEnabled:             v.GetBool("CORS_ENABLED"),
		CORSAllowedOrigins:      v.GetStringSlice("CORS_ALLOWED_ORIGINS"),
		LogLevel:                v.GetInt("LOG_LEVEL"),
	}, nil
}
