package registry

import (
	"fmt"
	"path"
)

// PluginTypeOfficial is the reserved plugin type; user submissions may never
// claim it.
const PluginTypeOfficial = "official"

// uploadTimeFormat is the stored representation of a release's upload time
const uploadTimeFormat = "2006-01-02 15:04:05"

// PluginIdentity is the durable record of a plugin id, independent of any
// specific release. One row exists per distinct plugin id across all time.
type PluginIdentity struct {
	ID          int64  `json:"id" db:"id"`
	PluginID    string `json:"plugin_id" db:"plugin_id"`
	Author      string `json:"author" db:"author"`
	SecretKey   string `json:"-" db:"secret_key"` // one-way digest, never the raw secret
	DownloadNum int64  `json:"download_num" db:"download_num"`
}

// PluginRelease is one versioned, publishable artifact of a plugin,
// belonging to exactly one identity.
type PluginRelease struct {
	ID          int64  `json:"id" db:"id"`
	File        string `json:"file" db:"file"`
	Name        string `json:"name" db:"name"`
	Version     string `json:"version" db:"version"`
	PluginID    string `json:"plugin_id" db:"plugin_id"`
	PluginType  string `json:"plugin_type" db:"plugin_type"`
	Description string `json:"description" db:"description"`
	Document    string `json:"document" db:"document"`
	Logo        string `json:"logo" db:"logo"`
	Remark      string `json:"remark" db:"remark"`
	UploadTime  string `json:"upload_time" db:"upload_time"`
	OnShelf     int    `json:"on_shelf" db:"on_shelf"` // 1 = published, 0 = retired
	PluginInfo  int64  `json:"plugin_info" db:"plugin_info"`
}

// StagePreview is the advisory result of staging an uploaded archive. The
// lists never block by themselves: the caller is responsible for withholding
// the commit when Ready is false.
type StagePreview struct {
	File        string   `json:"file"` // staged archive key, carried into Commit
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	PluginID    string   `json:"plugin_id"`
	PluginType  string   `json:"plugin_type"`
	Description string   `json:"description"`
	Document    string   `json:"document"`
	Logo        string   `json:"logo"`
	Success     []string `json:"success"`
	Warning     []string `json:"warning"`
	Error       []string `json:"error"`
	Ready       bool     `json:"ready"`
}

// CommitRequest is the authenticated, persisting phase of submission
type CommitRequest struct {
	File        string `json:"file"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	PluginID    string `json:"plugin_id"`
	PluginType  string `json:"plugin_type"`
	Description string `json:"description"`
	Document    string `json:"document"`
	Logo        string `json:"logo"`
	Remark      string `json:"remark"`
	Author      string `json:"author"`
	SecretKey   string `json:"secret_key"`
}

// RetireRequest unpublishes a plugin, softly or permanently
type RetireRequest struct {
	PluginID    string `json:"plugin_id"`
	Version     string `json:"version"`
	SecretKey   string `json:"secret_key"`
	ForceDelete bool   `json:"force_delete"`
}

// ArchiveFileName is the canonical storage file name for a release archive
func ArchiveFileName(pluginID, version string) string {
	return fmt.Sprintf("%s-%s.zip", pluginID, version)
}

// RemoteArchiveKey is the blob-store key for one release archive
func RemoteArchiveKey(keyPrefix, pluginID, version string) string {
	return path.Join(keyPrefix, pluginID, ArchiveFileName(pluginID, version))
}

// RemotePluginPrefix is the blob-store prefix holding every archive of one
// plugin id
func RemotePluginPrefix(keyPrefix, pluginID string) string {
	return path.Join(keyPrefix, pluginID)
}
