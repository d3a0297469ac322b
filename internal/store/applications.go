package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/emmsync/internal/emm"
)

// PutApplication caches an application resource under its package name.
func (s *Store) PutApplication(ctx context.Context, app *emm.Application) error {
	pkg := emm.ShortName(app.Name)
	if pkg == "" {
		return errors.New("put application: empty package name")
	}
	data, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("put application %s: %w", pkg, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO applications (package_name, document) VALUES (?, ?)
		ON CONFLICT(package_name) DO UPDATE SET document = excluded.document
	`, pkg, string(data))
	if err != nil {
		return fmt.Errorf("put application %s: %w", pkg, err)
	}
	return nil
}

// Application returns a cached application, or emm.ErrNotFound.
func (s *Store) Application(ctx context.Context, packageName string) (*emm.Application, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT document FROM applications WHERE package_name = ?
	`, packageName).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("application %s: %w", packageName, emm.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get application %s: %w", packageName, err)
	}
	var app emm.Application
	if err := json.Unmarshal([]byte(data), &app); err != nil {
		return nil, fmt.Errorf("unmarshal application %s: %w", packageName, err)
	}
	return &app, nil
}
