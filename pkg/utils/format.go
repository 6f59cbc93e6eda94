package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"squirrelctl/internal/logging"
	"squirrelctl/internal/models"
)

// FormatBytes renders a byte count with a binary unit, e.g. "1.4 MB".
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func PrintJSON(data interface{}) error {
	return WriteJSON(os.Stdout, data)
}

func WriteJSON(w io.Writer, data interface{}) error {
	jsonOutput, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(jsonOutput))
	return err
}

// fieldError is implemented by errors that carry per-field failures.
type fieldError interface {
	Fields() []string
}

// PrintError writes err as an ErrorResponse to stdout.
func PrintError(err error, command string) {
	errorResp := models.ErrorResponse{
		Error:     err.Error(),
		Timestamp: FormatTime(time.Now()),
		Command:   command,
	}
	var fe fieldError
	if errors.As(err, &fe) {
		errorResp.Fields = fe.Fields()
	}

	if err := PrintJSON(errorResp); err != nil {
		logging.L().Error("failed to print error in JSON format", zap.Error(err))
		fmt.Println("Error: ", errorResp)
	}
}

func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// FormatDuration rounds d to milliseconds for display.
func FormatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
