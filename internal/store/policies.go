package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/emm"
)

// PolicyInfo is the stored metadata of a policy.
type PolicyInfo struct {
	Name        string
	ContentHash string
	Version     int64
	UpdatedSeq  int64
}

// List yields every stored policy ordered by name.
//
// Rows are read up front: the pool holds a single connection, so a cursor
// left open across yields would block writes made by the consumer.
func (s *Store) List(ctx context.Context) iter.Seq2[emm.Record, error] {
	return func(yield func(emm.Record, error) bool) {
		records, err := s.listPolicies(ctx)
		if err != nil {
			yield(emm.Record{}, err)
			return
		}
		for _, rec := range records {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (s *Store) listPolicies(ctx context.Context) ([]emm.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, document
		FROM policies
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	defer rows.Close()

	var records []emm.Record
	for rows.Next() {
		var name, data string
		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		obj, err := unmarshalDocument(data)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		records = append(records, emm.Record{Name: name, Document: obj})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policies: %w", err)
	}
	return records, nil
}

// Get returns the document of one policy, or emm.ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (doc.Object, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM policies WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("policy %s: %w", name, emm.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get policy %s: %w", name, err)
	}
	return unmarshalDocument(data)
}

// Info returns the metadata of one policy, or emm.ErrNotFound.
func (s *Store) Info(ctx context.Context, name string) (PolicyInfo, error) {
	info := PolicyInfo{Name: name}
	err := s.db.QueryRowContext(ctx, `
		SELECT content_hash, version, updated_seq FROM policies WHERE name = ?
	`, name).Scan(&info.ContentHash, &info.Version, &info.UpdatedSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return info, fmt.Errorf("policy %s: %w", name, emm.ErrNotFound)
	}
	if err != nil {
		return info, fmt.Errorf("get policy %s: %w", name, err)
	}
	return info, nil
}

// Patch creates or replaces a policy, bumps its version and returns the
// stored copy.
func (s *Store) Patch(ctx context.Context, name string, obj doc.Object) (doc.Object, error) {
	if _, err := emm.PolicyPath("local", name); err != nil {
		return nil, fmt.Errorf("patch policy: %w", err)
	}
	data, hash, err := marshalDocument(obj)
	if err != nil {
		return nil, fmt.Errorf("patch policy %s: %w", name, err)
	}

	// updated_seq is a logical clock over all policy writes
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policies (name, document, content_hash, version, updated_seq)
		VALUES (?, ?, ?, 1, (SELECT COALESCE(MAX(updated_seq), 0) + 1 FROM policies))
		ON CONFLICT(name) DO UPDATE SET
			document = excluded.document,
			content_hash = excluded.content_hash,
			version = policies.version + 1,
			updated_seq = excluded.updated_seq
	`, name, data, hash)
	if err != nil {
		return nil, fmt.Errorf("patch policy %s: %w", name, err)
	}
	return s.Get(ctx, name)
}

// Delete removes a policy. Deleting a missing policy returns emm.ErrNotFound.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM policies WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete policy %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete policy %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("policy %s: %w", name, emm.ErrNotFound)
	}
	return nil
}
