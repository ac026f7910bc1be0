package models

import (
	"strings"
	"time"
)

// ItemType discriminates folders from files in the drive index.
type ItemType string

const (
	ItemFolder ItemType = "folder"
	ItemFile   ItemType = "file"
)

// Item is a folder or file stored in the drive index. Path is the parent path.
type Item struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	Type       ItemType   `json:"type"`
	Size       int64      `json:"size"`
	StorageRef MessageRef `json:"storage_ref"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsFolder reports whether the item is a folder.
func (i *Item) IsFolder() bool {
	return i != nil && i.Type == ItemFolder
}

// FullPath is the item's own path: its parent path followed by its id.
func (i *Item) FullPath() string {
	return JoinPath(i.Path, i.ID)
}

// JoinPath appends id to parent, normalizing slashes: JoinPath("/a/", "b") == "/a/b".
func JoinPath(parent, id string) string {
	return "/" + strings.Trim("/"+strings.Trim(parent, "/")+"/"+id, "/")
}

// Folder is a resolved upload target.
type Folder struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// IsZero reports whether no folder is set.
func (f Folder) IsZero() bool {
	return f.Path == ""
}
