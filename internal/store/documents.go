package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/docingest/internal/errors"
	"github.com/adverant/nexus/docingest/internal/models"
)

const documentColumns = `id, title, file_name, size, page_count, lang, version, user_id, parent_id, notes, created_at`

func scanDocument(row *sql.Row) (*models.Document, error) {
	var (
		d                    models.Document
		id, userID, parentID string
	)
	err := row.Scan(
		&id,
		&d.Title,
		&d.FileName,
		&d.Size,
		&d.PageCount,
		&d.Lang,
		&d.Version,
		&userID,
		&parentID,
		&d.Notes,
		timestamp{&d.CreatedAt},
	)
	if err != nil {
		return nil, err
	}

	if d.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid document id %q: %w", id, err)
	}
	if d.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid document owner %q: %w", userID, err)
	}
	pid, err := uuid.Parse(parentID)
	if err != nil {
		return nil, fmt.Errorf("invalid document parent %q: %w", parentID, err)
	}
	d.ParentID = &pid
	return &d, nil
}

// GetDocument returns a document by id
func (s *SQLStore) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	query := s.rebind(`SELECT ` + documentColumns + ` FROM documents WHERE id = ?`)
	d, err := scanDocument(s.db.QueryRowContext(ctx, query, id.String()))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get_document", err)
	}
	return d, nil
}

// FindDocumentByTitle looks up a document by title inside a folder
func (s *SQLStore) FindDocumentByTitle(ctx context.Context, parentID uuid.UUID, title string) (*models.Document, error) {
	query := s.rebind(`SELECT ` + documentColumns + ` FROM documents WHERE parent_id = ? AND title = ?`)
	d, err := scanDocument(s.db.QueryRowContext(ctx, query, parentID.String(), title))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.NewDatabaseError("find_document", err)
	}
	return d, nil
}

// CreateDocument validates and inserts a new document together with its
// initial pages. Title collisions inside the parent folder are reported as
// DOCUMENT_VALIDATION_FAILED and nothing is written.
func (s *SQLStore) CreateDocument(ctx context.Context, d *models.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	if err := d.Validate(); err != nil {
		return validationError(err)
	}

	return s.inTx(ctx, "create_document", func(tx *sql.Tx) error {
		if err := s.checkTitleFree(ctx, tx, d); err != nil {
			return err
		}

		query := s.rebind(`
			INSERT INTO documents (
				id, title, file_name, size, page_count, lang, version,
				user_id, parent_id, notes, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		_, err := tx.ExecContext(ctx, query,
			d.ID.String(), d.Title, d.FileName, d.Size, d.PageCount, d.Lang, d.Version,
			d.UserID.String(), d.ParentID.String(), d.Notes, d.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.NewDocumentValidationError("title", "document with this title already exists in folder", err)
			}
			return errors.NewDatabaseError("create_document", err)
		}

		return s.createPages(ctx, tx, d.ID, d.Version, d.PageCount)
	})
}

// SaveVersion persists a version bump: version, page_count, file_name and size
// change together with the page rows of the new version, in one transaction.
// Pages are regenerated from the previous version when it has any and created
// from scratch otherwise.
func (s *SQLStore) SaveVersion(ctx context.Context, d *models.Document) error {
	if err := d.Validate(); err != nil {
		return validationError(err)
	}
	if d.Version < 1 {
		return errors.NewDocumentValidationError("version", "a saved version must be at least 1", nil)
	}

	return s.inTx(ctx, "save_version", func(tx *sql.Tx) error {
		query := s.rebind(`
			UPDATE documents
			SET version = ?, page_count = ?, file_name = ?, size = ?, lang = ?, notes = ?
			WHERE id = ? AND version = ?
		`)
		res, err := tx.ExecContext(ctx, query,
			d.Version, d.PageCount, d.FileName, d.Size, d.Lang, d.Notes,
			d.ID.String(), d.Version-1,
		)
		if err != nil {
			return errors.NewDatabaseError("save_version", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.NewDatabaseError("save_version", err)
		}
		if n == 0 {
			return errors.NewDocumentValidationError("version",
				fmt.Sprintf("document %s is not at version %d", d.ID, d.Version-1), nil)
		}

		err = s.recreatePages(ctx, tx, d.ID, d.Version-1, d.Version, d.PageCount)
		if stderrors.Is(err, ErrNoPages) {
			return s.createPages(ctx, tx, d.ID, d.Version, d.PageCount)
		}
		return err
	})
}

func (s *SQLStore) checkTitleFree(ctx context.Context, q queryer, d *models.Document) error {
	var count int
	query := s.rebind(`SELECT COUNT(*) FROM documents WHERE parent_id = ? AND title = ?`)
	if err := q.QueryRowContext(ctx, query, d.ParentID.String(), d.Title).Scan(&count); err != nil {
		return errors.NewDatabaseError("check_title", err)
	}
	if count > 0 {
		return errors.NewDocumentValidationError("title",
			fmt.Sprintf("document %q already exists in folder", d.Title), nil)
	}
	return nil
}

// createPages inserts empty page rows 1..count for a version
func (s *SQLStore) createPages(ctx context.Context, q queryer, docID uuid.UUID, version, count int) error {
	query := s.rebind(`INSERT INTO pages (document_id, version, number, text) VALUES (?, ?, ?, '')`)
	for number := 1; number <= count; number++ {
		if _, err := q.ExecContext(ctx, query, docID.String(), version, number); err != nil {
			return errors.NewDatabaseError("create_pages", err)
		}
	}
	return nil
}

// recreatePages builds the page rows of target from the rows of source.
// It returns ErrNoPages when source has none.
func (s *SQLStore) recreatePages(ctx context.Context, q queryer, docID uuid.UUID, source, target, count int) error {
	var existing int
	query := s.rebind(`SELECT COUNT(*) FROM pages WHERE document_id = ? AND version = ?`)
	if err := q.QueryRowContext(ctx, query, docID.String(), source).Scan(&existing); err != nil {
		return errors.NewDatabaseError("recreate_pages", err)
	}
	if existing == 0 {
		return ErrNoPages
	}

	query = s.rebind(`DELETE FROM pages WHERE document_id = ? AND version = ?`)
	if _, err := q.ExecContext(ctx, query, docID.String(), target); err != nil {
		return errors.NewDatabaseError("recreate_pages", err)
	}
	return s.createPages(ctx, q, docID, target, count)
}

// SavePageText stores recognized text for one page, creating the row when the
// version has none yet.
func (s *SQLStore) SavePageText(ctx context.Context, docID uuid.UUID, version, number int, text string) error {
	if number < 1 {
		return fmt.Errorf("page number must be >= 1, got %d", number)
	}
	query := s.rebind(`
		INSERT INTO pages (document_id, version, number, text) VALUES (?, ?, ?, ?)
		ON CONFLICT (document_id, version, number) DO UPDATE SET text = excluded.text
	`)
	if _, err := s.db.ExecContext(ctx, query, docID.String(), version, number, text); err != nil {
		return errors.NewDatabaseError("save_page_text", err)
	}
	return nil
}

// Pages lists the pages of one document version ordered by number
func (s *SQLStore) Pages(ctx context.Context, docID uuid.UUID, version int) ([]models.Page, error) {
	query := s.rebind(`SELECT number, text FROM pages WHERE document_id = ? AND version = ? ORDER BY number`)
	rows, err := s.db.QueryContext(ctx, query, docID.String(), version)
	if err != nil {
		return nil, errors.NewDatabaseError("list_pages", err)
	}
	defer rows.Close()

	var pages []models.Page
	for rows.Next() {
		p := models.Page{DocumentID: docID, Version: version}
		if err := rows.Scan(&p.Number, &p.Text); err != nil {
			return nil, errors.NewDatabaseError("list_pages", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list_pages", err)
	}
	return pages, nil
}

func validationError(err error) error {
	var ve *models.ValidationError
	if stderrors.As(err, &ve) {
		return errors.NewDocumentValidationError(ve.Field, ve.Reason, err)
	}
	return errors.NewDocumentValidationError("document", err.Error(), err)
}
