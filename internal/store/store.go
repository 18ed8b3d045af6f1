/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package store implements the durable Postgres-backed state of the control
// plane: resource types, resources, reconciliation history and admission
// webhooks.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-logr/logr"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config carries the database connection settings.
type Config struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, sslMode)
}

// Store wraps the database handle; all control plane state goes through it.
type Store struct {
	db  *sqlx.DB
	log logr.Logger
	now func() time.Time
}

// New opens a connection pool, waits for the database to become reachable
// and applies pending migrations.
func New(ctx context.Context, cfg Config, log logr.Logger) (*Store, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "error opening database")
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := retry.Do(
		func() error { return db.PingContext(ctx) },
		retry.Context(ctx),
		retry.Attempts(10),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			log.Info("waiting for database", "attempt", n+1, "error", err.Error())
		}),
	); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "database not reachable")
	}

	s := &Store{
		db:  sqlx.NewDb(db, "pgx"),
		log: log.WithName("store"),
		now: func() time.Time { return time.Now().UTC() },
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewFromDB wraps an existing handle without running migrations; used by
// tests.
func NewFromDB(db *sql.DB, driverName string, log logr.Logger) *Store {
	return &Store{
		db:  sqlx.NewDb(db, driverName),
		log: log.WithName("store"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "error setting migration dialect")
	}
	if err := goose.Up(s.db.DB, "migrations"); err != nil {
		return errors.Wrap(err, "error applying migrations")
	}
	s.log.Info("database schema up to date")
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "error starting transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error(rbErr, "error rolling back transaction")
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "error committing transaction")
}
