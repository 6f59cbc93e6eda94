package models

type UploadResult struct {
	Project        string         `json:"project"`
	Destination    string         `json:"destination"`
	Mode           string         `json:"mode"`
	DryRun         bool           `json:"dry_run,omitempty"`
	Transfers      []TransferInfo `json:"transfers"`
	TotalFiles     int            `json:"total_files"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	TotalSizeHuman string         `json:"total_size_human"`
	DownloadURL    string         `json:"download_url,omitempty"`
	OperationTime  string         `json:"operation_time"`
	UploadDuration string         `json:"upload_duration"`
}
