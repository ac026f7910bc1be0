// Package drive is the index of folders and files kept in the storage channel.
//
// Paths are built from item ids, never names: a folder with id f2 inside folder a has
// the full path /a/f2 and its children are stored with path /a/f2.
package drive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"drivebot/internal/models"
)

const RootPath = "/"

var (
	ErrFolderNotFound = errors.New("drive: folder not found")
	ErrItemNotFound   = errors.New("drive: item not found")
	ErrEmptyName      = errors.New("drive: name must not be empty")
)

type Index struct {
	db  *sql.DB
	now func() time.Time
}

func NewIndex(db *sql.DB) *Index {
	return &Index{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const itemColumns = `id, name, path, type, size, storage_chat_id, storage_message_id, created_at`

// Search returns every item whose name contains query, ignoring case, keyed by id.
func (x *Index) Search(ctx context.Context, query string) (map[string]*models.Item, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := x.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE LOWER(name) LIKE ? ESCAPE '!'`, pattern)
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*models.Item)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out[item.ID] = item
	}
	return out, rows.Err()
}

// NewFolder creates a folder named name under parentPath.
func (x *Index) NewFolder(ctx context.Context, parentPath, name string) (*models.Item, error) {
	item := &models.Item{Name: strings.TrimSpace(name), Type: models.ItemFolder}
	return x.insert(ctx, parentPath, item)
}

// NewFile records a file stored at ref inside folderPath.
func (x *Index) NewFile(ctx context.Context, folderPath, name string, ref models.MessageRef, size int64) (*models.Item, error) {
	item := &models.Item{Name: name, Type: models.ItemFile, Size: size, StorageRef: ref}
	return x.insert(ctx, folderPath, item)
}

func (x *Index) insert(ctx context.Context, parentPath string, item *models.Item) (*models.Item, error) {
	if item.Name == "" {
		return nil, ErrEmptyName
	}
	parent, err := x.normalizeFolder(ctx, parentPath)
	if err != nil {
		return nil, err
	}
	item.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
	item.Path = parent
	item.CreatedAt = x.now()

	_, err = x.db.ExecContext(ctx,
		`INSERT INTO items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Name, item.Path, string(item.Type), item.Size,
		item.StorageRef.ChatID, item.StorageRef.MessageID, item.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", item.Type, err)
	}
	return item, nil
}

// ListFolder returns the children of path, folders first, then by name.
func (x *Index) ListFolder(ctx context.Context, path string) ([]*models.Item, error) {
	parent, err := x.normalizeFolder(ctx, path)
	if err != nil {
		return nil, err
	}
	rows, err := x.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE path = ?
		 ORDER BY CASE type WHEN 'folder' THEN 0 ELSE 1 END, name, id`, parent)
	if err != nil {
		return nil, fmt.Errorf("list folder: %w", err)
	}
	defer rows.Close()

	var out []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (x *Index) Get(ctx context.Context, id string) (*models.Item, error) {
	row := x.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	return item, err
}

// normalizeFolder returns the canonical form of path after checking that it names the
// root or an existing folder.
func (x *Index) normalizeFolder(ctx context.Context, path string) (string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return RootPath, nil
	}
	canonical := "/" + trimmed
	id := trimmed[strings.LastIndex(trimmed, "/")+1:]

	folder, err := x.Get(ctx, id)
	if errors.Is(err, ErrItemNotFound) {
		return "", fmt.Errorf("%w: %s", ErrFolderNotFound, canonical)
	}
	if err != nil {
		return "", err
	}
	if !folder.IsFolder() || folder.FullPath() != canonical {
		return "", fmt.Errorf("%w: %s", ErrFolderNotFound, canonical)
	}
	return canonical, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*models.Item, error) {
	var (
		item     models.Item
		itemType string
	)
	err := s.Scan(&item.ID, &item.Name, &item.Path, &itemType, &item.Size,
		&item.StorageRef.ChatID, &item.StorageRef.MessageID, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	item.Type = models.ItemType(itemType)
	return &item, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`).Replace(s)
}
