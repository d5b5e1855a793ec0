package migrations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"

	chstore "custody-workbench/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the observation database when missing,
// applies the embedded schema and returns a connection to that database.
func RunClickhouseMigrations(ctx context.Context, dsn string) (conn *chstore.Conn, err error) {
	database, err := targetDatabase(dsn)
	if err != nil {
		return nil, err
	}
	if err := createDatabase(ctx, dsn, database); err != nil {
		return nil, err
	}

	conn, err = chstore.NewConnWithDatabase(ctx, dsn, database)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse %s: %w", database, err)
	}
	defer func() {
		if err != nil {
			conn.Close()
			conn = nil
		}
	}()

	files, contents, err := readSQLFiles(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, err
	}
	for i, file := range files {
		stmts, err := statements(contents[i])
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", file, err)
		}
		// One statement per Exec on the native protocol.
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				return nil, fmt.Errorf("apply migration %s: %w", file, err)
			}
		}
	}
	return conn, nil
}

func createDatabase(ctx context.Context, dsn, database string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return fmt.Errorf("connect clickhouse server: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+database); err != nil {
		return fmt.Errorf("create database %s: %w", database, err)
	}
	return nil
}

func targetDatabase(dsn string) (string, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	if opts.Auth.Database == "" || opts.Auth.Database == "default" {
		return "", errors.New("clickhouse dsn must name a database")
	}
	return opts.Auth.Database, nil
}

var errUnterminatedString = errors.New("unterminated string literal")

// statements splits sql on semicolons outside single-quoted literals and
// drops -- line comments. Doubled quotes inside a literal are an escape.
func statements(sql string) ([]string, error) {
	var (
		out     []string
		current strings.Builder
		quoted  bool
	)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			out = append(out, stmt)
		}
		current.Reset()
	}

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case quoted:
			current.WriteByte(ch)
			if ch == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					current.WriteByte('\'')
					i++
				} else {
					quoted = false
				}
			}
		case ch == '\'':
			quoted = true
			current.WriteByte(ch)
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			current.WriteByte('\n')
		case ch == ';':
			flush()
		default:
			current.WriteByte(ch)
		}
	}
	if quoted {
		return nil, errUnterminatedString
	}
	flush()
	return out, nil
}
