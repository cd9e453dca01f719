package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"

	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres stores settings and scores in PostgreSQL.
type Postgres struct {
	conn *sql.DB
}

func Connect(dsn string) (*Postgres, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	log.Println("[DB] Connected to PostgreSQL")
	return &Postgres{conn: conn}, nil
}

func (d *Postgres) Close() error {
	return d.conn.Close()
}

func (d *Postgres) Ping() error {
	return d.conn.Ping()
}

func (d *Postgres) Migrate() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations dir: %w", err)
	}

	for _, entry := range entries {
		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		if _, err := d.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", entry.Name(), err)
		}
		log.Printf("[DB] Applied migration: %s\n", entry.Name())
	}
	return nil
}

func (d *Postgres) Get(key string) (string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting %s: %w", key, err)
	}
	return value, nil
}

func (d *Postgres) Set(key, value string) error {
	_, err := d.conn.Exec(`
		INSERT INTO kv (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = now()
	`, key, value)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

func (d *Postgres) RecordScore(h HighScore) error {
	_, err := d.conn.Exec(`
		INSERT INTO high_scores (code, players, score, level, victory)
		VALUES ($1, $2, $3, $4, $5)
	`, h.Code, h.Players, h.Score, h.Level, h.Victory)
	if err != nil {
		return fmt.Errorf("recording score: %w", err)
	}
	return nil
}

func (d *Postgres) TopScores(limit int) ([]HighScore, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := d.conn.Query(`
		SELECT code, players, score, level, victory, created_at
		FROM high_scores
		ORDER BY score DESC, level DESC, created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top scores: %w", err)
	}
	defer rows.Close()

	var list []HighScore
	for rows.Next() {
		var h HighScore
		if err := rows.Scan(&h.Code, &h.Players, &h.Score, &h.Level, &h.Victory, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		list = append(list, h)
	}
	return list, rows.Err()
}
