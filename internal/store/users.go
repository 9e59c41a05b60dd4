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

const userColumns = `id, username, is_superuser, ocr_language`

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u  models.User
		id string
	)
	if err := row.Scan(&id, &u.Username, &u.IsSuperuser, &u.OCRLanguage); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", id, err)
	}
	u.ID = parsed
	return &u, nil
}

func (s *SQLStore) getUser(ctx context.Context, op, where string, args ...interface{}) (*models.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + where)
	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.NewDatabaseError(op, err)
	}
	return u, nil
}

// FirstSuperuser returns the earliest created superuser
func (s *SQLStore) FirstSuperuser(ctx context.Context) (*models.User, error) {
	return s.getUser(ctx, "first_superuser",
		`is_superuser = ? ORDER BY created_at, username LIMIT 1`, true)
}

// UserByUsername resolves a user by its username
func (s *SQLStore) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "user_by_username", `username = ?`, username)
}

// UserByID resolves a user by id
func (s *SQLStore) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.getUser(ctx, "user_by_id", `id = ?`, id.String())
}

// CreateUser inserts a user, assigning an id when none is set
func (s *SQLStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	query := s.rebind(`
		INSERT INTO users (id, username, is_superuser, ocr_language, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if _, err := s.db.ExecContext(ctx, query,
		u.ID.String(), u.Username, u.IsSuperuser, u.OCRLanguage, time.Now().UTC(),
	); err != nil {
		return errors.NewDatabaseError("create_user", err)
	}
	return nil
}

const folderColumns = `id, title, user_id, parent_id`

func scanFolder(row *sql.Row) (*models.Folder, error) {
	var (
		f          models.Folder
		id, userID string
		parentID   sql.NullString
	)
	if err := row.Scan(&id, &f.Title, &userID, &parentID); err != nil {
		return nil, err
	}

	var err error
	if f.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid folder id %q: %w", id, err)
	}
	if f.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid folder owner %q: %w", userID, err)
	}
	if parentID.Valid {
		pid, err := uuid.Parse(parentID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid folder parent %q: %w", parentID.String, err)
		}
		f.ParentID = &pid
	}
	return &f, nil
}

// GetFolder returns a folder by id
func (s *SQLStore) GetFolder(ctx context.Context, id uuid.UUID) (*models.Folder, error) {
	query := s.rebind(`SELECT ` + folderColumns + ` FROM folders WHERE id = ?`)
	f, err := scanFolder(s.db.QueryRowContext(ctx, query, id.String()))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get_folder", err)
	}
	return f, nil
}

// CreateFolder inserts a folder, assigning an id when none is set
func (s *SQLStore) CreateFolder(ctx context.Context, f *models.Folder) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}

	var parent interface{}
	if f.ParentID != nil {
		parent = f.ParentID.String()
	}

	query := s.rebind(`INSERT INTO folders (id, title, user_id, parent_id) VALUES (?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, f.ID.String(), f.Title, f.UserID.String(), parent); err != nil {
		if isUniqueViolation(err) {
			return errors.NewDocumentValidationError("title", fmt.Sprintf("folder %q already exists", f.Title), err)
		}
		return errors.NewDatabaseError("create_folder", err)
	}
	return nil
}

// GetOrCreateInbox returns the user's inbox, creating it on first need.
// The partial unique index on root folders keeps it exactly one per user.
func (s *SQLStore) GetOrCreateInbox(ctx context.Context, userID uuid.UUID) (*models.Folder, error) {
	inbox, err := s.findInbox(ctx, userID)
	if err == nil {
		return inbox, nil
	}
	if !stderrors.Is(err, ErrNotFound) {
		return nil, err
	}

	inbox = &models.Folder{Title: models.InboxTitle, UserID: userID}
	if err := s.CreateFolder(ctx, inbox); err != nil {
		if errors.HasCode(err, errors.ErrorDocumentValidation) {
			// lost the race to a concurrent ingestion
			return s.findInbox(ctx, userID)
		}
		return nil, err
	}
	return inbox, nil
}

func (s *SQLStore) findInbox(ctx context.Context, userID uuid.UUID) (*models.Folder, error) {
	query := s.rebind(`SELECT ` + folderColumns + ` FROM folders WHERE user_id = ? AND title = ? AND parent_id IS NULL`)
	f, err := scanFolder(s.db.QueryRowContext(ctx, query, userID.String(), models.InboxTitle))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get_inbox", err)
	}
	return f, nil
}
