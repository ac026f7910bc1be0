package drive

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"drivebot/internal/config"
	"drivebot/internal/models"
	"drivebot/internal/storage"
)

func TestSearchMatchesSubstringIgnoringCase(t *testing.T) {
	x := NewIndex(openTestDB(t))
	ctx := context.Background()

	docs := mustFolder(t, x, "/", "Docs")
	old := mustFolder(t, x, docs.FullPath(), "Docs old")
	mustFolder(t, x, "/", "Photos")
	if _, err := x.NewFile(ctx, "/", "docs.txt", models.MessageRef{ChatID: -100, MessageID: 1}, 10); err != nil {
		t.Fatalf("NewFile error: %v", err)
	}

	found, err := x.Search(ctx, "DOCS")
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(found) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(found))
	}
	if got := found[old.ID]; got == nil || got.Path != docs.FullPath() {
		t.Fatalf("nested folder missing or wrong parent: %+v", got)
	}

	found, err = x.Search(ctx, "nothing")
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no matches, got %d", len(found))
	}
}

func TestSearchTreatsWildcardsLiterally(t *testing.T) {
	x := NewIndex(openTestDB(t))
	mustFolder(t, x, "/", "100%_done")
	mustFolder(t, x, "/", "1000 done")

	found, err := x.Search(context.Background(), "%_")
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected literal match only, got %d", len(found))
	}
}

func TestNewFileRequiresExistingFolder(t *testing.T) {
	x := NewIndex(openTestDB(t))
	ctx := context.Background()
	folder := mustFolder(t, x, "/", "Docs")

	ref := models.MessageRef{ChatID: -100, MessageID: 9}
	item, err := x.NewFile(ctx, folder.FullPath(), "a.pdf", ref, 2048)
	if err != nil {
		t.Fatalf("NewFile error: %v", err)
	}
	got, err := x.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Path != folder.FullPath() || got.Size != 2048 || got.StorageRef != ref || got.Type != models.ItemFile {
		t.Fatalf("unexpected stored item %+v", got)
	}
	if len(item.ID) != 32 {
		t.Fatalf("expected dashless uuid, got %q", item.ID)
	}

	if _, err := x.NewFile(ctx, "/missing", "b.pdf", ref, 1); !errors.Is(err, ErrFolderNotFound) {
		t.Fatalf("expected ErrFolderNotFound, got %v", err)
	}
	// a file id is not a folder
	if _, err := x.NewFile(ctx, item.FullPath(), "c.pdf", ref, 1); !errors.Is(err, ErrFolderNotFound) {
		t.Fatalf("expected ErrFolderNotFound for file parent, got %v", err)
	}
	// right id, wrong ancestry
	if _, err := x.NewFile(ctx, "/other/"+folder.ID, "d.pdf", ref, 1); !errors.Is(err, ErrFolderNotFound) {
		t.Fatalf("expected ErrFolderNotFound for wrong parent chain, got %v", err)
	}
}

func TestListFolderOrdersFoldersFirst(t *testing.T) {
	x := NewIndex(openTestDB(t))
	ctx := context.Background()
	if _, err := x.NewFile(ctx, "/", "a.txt", models.MessageRef{}, 1); err != nil {
		t.Fatalf("NewFile error: %v", err)
	}
	mustFolder(t, x, "/", "zeta")
	mustFolder(t, x, "/", "alpha")

	items, err := x.ListFolder(ctx, "/")
	if err != nil {
		t.Fatalf("ListFolder error: %v", err)
	}
	var names []string
	for _, it := range items {
		names = append(names, it.Name)
	}
	want := []string{"alpha", "zeta", "a.txt"}
	if len(names) != len(want) {
		t.Fatalf("got %v want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v want %v", names, want)
		}
	}
}

func TestGetMissingAndEmptyName(t *testing.T) {
	x := NewIndex(openTestDB(t))
	if _, err := x.Get(context.Background(), "nope"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if _, err := x.NewFolder(context.Background(), "/", "  "); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func mustFolder(t *testing.T, x *Index, parent, name string) *models.Item {
	t.Helper()
	item, err := x.NewFolder(context.Background(), parent, name)
	if err != nil {
		t.Fatalf("NewFolder(%s, %s) error: %v", parent, name, err)
	}
	return item
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
