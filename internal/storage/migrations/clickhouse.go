package migrations

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	chstore "dividend-screener/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the database named in dsn when missing and
// applies every embedded migration. ClickHouse DDL has no transactions, so
// each file must be idempotent (IF NOT EXISTS). Returns a connection to the
// target database for reuse.
func RunClickhouseMigrations(ctx context.Context, dsn string) (conn *chstore.Conn, err error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}

	migrations, err := Load(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, err
	}
	stmts := make([][]string, len(migrations))
	for i, m := range migrations {
		if err := validateNoSemicolonInStrings(m.SQL); err != nil {
			return nil, fmt.Errorf("validate migration %s: %w", m.Name, err)
		}
		stmts[i] = splitStatements(m.SQL)
	}

	if err := createDatabase(ctx, dsn, dbName); err != nil {
		return nil, err
	}

	conn, err = chstore.NewConn(ctx, dsn, chstore.WithDatabase(dbName))
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}
	defer func() {
		if err != nil {
			conn.Close()
			conn = nil
		}
	}()

	for i, m := range migrations {
		for _, stmt := range stmts[i] {
			if err := conn.Exec(ctx, stmt); err != nil {
				return nil, fmt.Errorf("apply migration %s: %w", m.Name, err)
			}
		}
	}
	return conn, nil
}

func createDatabase(ctx context.Context, dsn, dbName string) error {
	admin, err := chstore.NewConn(ctx, dsn, chstore.WithDatabase(""))
	if err != nil {
		return fmt.Errorf("connect clickhouse admin: %w", err)
	}
	execErr := admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName))
	closeErr := admin.Close()
	if execErr != nil {
		return fmt.Errorf("create database %s: %w", dbName, execErr)
	}
	return closeErr
}

// splitStatements splits a migration into statements on semicolons after
// dropping blank lines and -- comments. The clickhouse driver runs one
// statement per Exec. Semicolons inside string literals are not supported;
// validateNoSemicolonInStrings rejects them up front.
func splitStatements(input string) []string {
	var kept []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

var errSemicolonInString = errors.New("semicolon inside string literal")

// validateNoSemicolonInStrings scans single-quoted literals, honouring the ''
// escape, and fails on the first semicolon found inside one.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if inString && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		case ';':
			if inString {
				return fmt.Errorf("%w at offset %d", errSemicolonInString, i)
			}
		}
	}
	return nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
