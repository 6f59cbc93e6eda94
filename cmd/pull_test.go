package cmd

import (
	"os"
	"strings"
	"testing"
)

func TestPullCommand(t *testing.T) {
	setIntegrationConfig(t)

	tempDir := t.TempDir()

	// Note: This test assumes that the bucket holds a published release
	output, err := execute(t, "pull",
		"--destination", tempDir,
		"--confirm",
	)
	if err != nil {
		t.Fatalf("Pull command failed: %v\n%s", err, output)
	}

	if !strings.Contains(output, tempDir) {
		t.Errorf("Output doesn't contain destination path: %s", output)
	}

	if !strings.Contains(output, os.Getenv("TEST_BUCKET_NAME")) {
		t.Errorf("Output doesn't contain bucket name: %s", output)
	}

	files, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("Failed to read temp directory: %v", err)
	}
	for _, f := range files {
		if strings.EqualFold(f.Name(), "Setup.exe") {
			t.Errorf("Setup.exe should not be downloaded")
		}
	}
}

func TestPullNeedsDestination(t *testing.T) {
	setTestConfig(t, "")

	output, err := execute(t, "pull", "--confirm")
	if err == nil {
		t.Fatal("pull without --destination or --project should fail")
	}
	if !strings.Contains(output, "no destination directory") {
		t.Errorf("unexpected error output: %s", output)
	}
}
