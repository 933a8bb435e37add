package model

import (
	"crypto/md5"
	"encoding/hex"
)

// FileNode is a row of the host platform's filecache table.
type FileNode struct {
	FileID   int64  `json:"fileId" gorm:"column:fileid;primaryKey;autoIncrement"`
	Storage  int64  `json:"storage" gorm:"column:storage"`
	Path     string `json:"path" gorm:"column:path"`
	PathHash string `json:"-" gorm:"column:path_hash"`
	Parent   int64  `json:"parent" gorm:"column:parent"`
	Name     string `json:"name" gorm:"column:name"`
	Mimetype string `json:"mimetype" gorm:"column:mimetype"`
	Size     int64  `json:"size" gorm:"column:size"`
	MTime    int64  `json:"mtime" gorm:"column:mtime"`
}

func (FileNode) TableName() string {
	return "filecache"
}

// HashPath computes the path_hash the filecache keeps unique per storage.
func HashPath(path string) string {
	sum := md5.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}

// NodeInfo is the name and parent folder of a filecache node.
type NodeInfo struct {
	Name   string `json:"name"`
	Parent int64  `json:"parent"`
}

// FolderMimetype marks directory nodes in the filecache.
const FolderMimetype = "httpd/unix-directory"

// Storage is a row of the storages table. Nodes reference it by NumericID;
// the rest of the platform knows it by its string ID.
type Storage struct {
	NumericID int64  `json:"numericId" gorm:"column:numeric_id;primaryKey;autoIncrement"`
	ID        string `json:"id" gorm:"column:id"`
}

func (Storage) TableName() string {
	return "storages"
}
