package models

import "time"

// PackageInfo describes a built package archive.
type PackageInfo struct {
	Path       string    `json:"path"`
	AppID      string    `json:"app_id"`
	Version    string    `json:"version"`
	EntryCount int       `json:"entry_count"`
	SizeBytes  int64     `json:"size_bytes"`
	SizeHuman  string    `json:"size_human"`
	SHA256     string    `json:"sha256"`
	CreatedAt  time.Time `json:"created_at"`
}

type TransferInfo struct {
	ID              string `json:"id"`
	DisplayName     string `json:"display_name"`
	Destination     string `json:"destination"`
	Size            string `json:"size"`
	SourcePath      string `json:"source_path"`
	Status          string `json:"status"`
	ProgressPercent int    `json:"progress_percent"`
	SHA1            string `json:"sha1,omitempty"`
	SHA256          string `json:"sha256,omitempty"`
}

type PublishResult struct {
	RunID       string         `json:"run_id"`
	Mode        string         `json:"mode"`
	State       string         `json:"state"`
	AppID       string         `json:"app_id"`
	Version     string         `json:"version"`
	Package     *PackageInfo   `json:"package,omitempty"`
	Transfers   []TransferInfo `json:"transfers"`
	DownloadURL string         `json:"download_url,omitempty"`
	Duration    string         `json:"duration"`
	FinishedAt  string         `json:"finished_at"`
}

type TreeEntry struct {
	ID           string `json:"id"`
	Path         string `json:"path"`
	Depth        int    `json:"depth"`
	IsDirectory  bool   `json:"is_directory"`
	IsRootFixed  bool   `json:"is_root_fixed,omitempty"`
	SourcePath   string `json:"source_path,omitempty"`
	Size         string `json:"size"`
	LastModified string `json:"last_modified,omitempty"`
}

type ProjectInfo struct {
	Path               string            `json:"path"`
	AppID              string            `json:"app_id"`
	Title              string            `json:"title"`
	Version            string            `json:"version"`
	VersionIsManual    bool              `json:"version_is_manual"`
	Authors            string            `json:"authors"`
	Description        string            `json:"description"`
	MainExecutablePath string            `json:"main_executable_path,omitempty"`
	IconPath           string            `json:"icon_path,omitempty"`
	SplashPath         string            `json:"splash_path,omitempty"`
	NupkgOutputPath    string            `json:"nupkg_output_path,omitempty"`
	SquirrelOutputPath string            `json:"squirrel_output_path,omitempty"`
	Destination        string            `json:"destination,omitempty"`
	DestinationFields  map[string]string `json:"destination_fields,omitempty"`
	FileCount          int               `json:"file_count"`
}

type DestinationInfo struct {
	Label       string            `json:"label"`
	Selected    bool              `json:"selected"`
	Fields      map[string]string `json:"fields"`
	DownloadURL string            `json:"download_url"`
	Valid       bool              `json:"valid"`
	Errors      []string          `json:"errors,omitempty"`
}

type ValidationReport struct {
	Project string   `json:"project"`
	Valid   bool     `json:"valid"`
	Fields  []string `json:"fields,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}
