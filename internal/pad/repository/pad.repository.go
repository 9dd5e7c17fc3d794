package repository

import (
	"database/sql"
	"scratchpad/internal/pad/model"
	"scratchpad/pkg/logger"
)

type PadRepository struct {
	DB *sql.DB
}

func NewPadRepository(db *sql.DB) *PadRepository {
	return &PadRepository{DB: db}
}

func (r *PadRepository) EnsureSchema() error {
	_, err := r.DB.Exec(`CREATE TABLE IF NOT EXISTS pads (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		last_modified TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		logger.Sugar.Errorf("Failed to ensure pads schema: %v", err)
	}
	return err
}

func (r *PadRepository) LoadAll() ([]model.Pad, error) {
	rows, err := r.DB.Query("SELECT id, content, created_at, last_modified FROM pads")
	if err != nil {
		logger.Sugar.Errorf("Failed to load pads: %v", err)
		return nil, err
	}
	defer rows.Close()

	var pads []model.Pad
	for rows.Next() {
		var p model.Pad
		if err := rows.Scan(&p.ID, &p.Content, &p.CreatedAt, &p.LastModified); err != nil {
			logger.Sugar.Errorf("Failed to scan pad row: %v", err)
			continue
		}
		pads = append(pads, p)
	}
	return pads, rows.Err()
}

// Upsert writes the whole snapshot; the newest write fully replaces
// whatever the row held before.
func (r *PadRepository) Upsert(p model.Pad) error {
	_, err := r.DB.Exec(`INSERT INTO pads (id, content, created_at, last_modified) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET content = $2, last_modified = $4`,
		p.ID, p.Content, p.CreatedAt, p.LastModified)
	if err != nil {
		logger.Sugar.Errorf("Failed to upsert pad %s: %v", p.ID, err)
	}
	return err
}

func (r *PadRepository) Delete(id string) error {
	_, err := r.DB.Exec("DELETE FROM pads WHERE id = $1", id)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete pad %s: %v", id, err)
	}
	return err
}
