package repository

import (
	"database/sql"
	"fmt"

	"larkexport/internal/models"
	"larkexport/internal/service"

	_ "github.com/lib/pq"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(connStr string) (*PostgresRepo, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS export_runs (
		id UUID PRIMARY KEY,
		chat_id TEXT NOT NULL,
		sink VARCHAR(10) NOT NULL,
		row_count INT NOT NULL DEFAULT 0,
		sheet_name TEXT,
		status VARCHAR(10) NOT NULL,
		error TEXT,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);
	`
	if _, err = db.Exec(createTableQuery); err != nil {
		return nil, fmt.Errorf("failed to ensure export_runs table exists: %w", err)
	}
	return &PostgresRepo{db: db}, nil
}

var _ service.ExportRepository = (*PostgresRepo)(nil)

func (r *PostgresRepo) RecordRun(run models.ExportRun) error {
	query := `INSERT INTO export_runs (id, chat_id, sink, row_count, sheet_name, status, error, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`
	_, err := r.db.Exec(query, run.ID, run.ChatID, run.Sink, run.RowCount, run.SheetName, run.Status, run.Error, run.CreatedAt)
	return err
}

func (r *PostgresRepo) ListRuns() ([]models.ExportRun, error) {
	query := `SELECT id, chat_id, sink, row_count, sheet_name, status, error, created_at
	          FROM export_runs
	          ORDER BY created_at DESC;`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []models.ExportRun{}
	for rows.Next() {
		var run models.ExportRun
		var sheetName, runErr sql.NullString
		if err := rows.Scan(&run.ID, &run.ChatID, &run.Sink, &run.RowCount, &sheetName, &run.Status, &runErr, &run.CreatedAt); err != nil {
			return nil, err
		}
		if sheetName.Valid {
			v := sheetName.String
			run.SheetName = &v
		}
		if runErr.Valid {
			v := runErr.String
			run.Error = &v
		}
		results = append(results, run)
	}
	return results, rows.Err()
}
