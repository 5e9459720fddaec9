// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

// Package postgres probes the stack's database. The schema itself is owned
// by the CI job payload; stackup only verifies reachability and reads the
// job_timestamps table for status reporting.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Conn holds the connection parameters for probe connections.
type Conn struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// DSN renders the keyword/value connection string.
func (c Conn) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=5",
		c.Host, c.Port, c.Database, c.User, c.Password, sslMode)
}

// Probe opens a connection and runs SELECT 1. It is the database Target's
// verification predicate: an error means "not yet ready".
func Probe(ctx context.Context, conn Conn) error {
	db, err := open(conn)
	if err != nil {
		return err
	}
	defer db.Close()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database not answering: %w", err)
	}
	return nil
}

// CountJobTimestamps returns the number of rows the CI job has recorded, or
// -1 with a nil error when the table does not exist yet (the job creates it
// on first run).
func CountJobTimestamps(ctx context.Context, conn Conn) (int64, error) {
	db, err := open(conn)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var exists bool
	if err := db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'job_timestamps')",
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check for job_timestamps table: %w", err)
	}
	if !exists {
		return -1, nil
	}

	var count int64
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM job_timestamps").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count job_timestamps rows: %w", err)
	}
	return count, nil
}

func open(conn Conn) (*sql.DB, error) {
	db, err := sql.Open("pgx", conn.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetConnMaxLifetime(time.Minute)
	db.SetMaxOpenConns(1)
	return db, nil
}
