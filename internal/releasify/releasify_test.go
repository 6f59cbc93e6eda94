package releasify

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestArgs(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{
			name: "minimal",
			req:  Request{PackagePath: "pkg/acme.1.0.0.nupkg", ReleaseDir: "Releases"},
			want: []string{"-releasify", "pkg/acme.1.0.0.nupkg", "-releaseDir", "Releases", "-l", "Desktop,StartMenu"},
		},
		{
			name: "icon and splash",
			req:  Request{PackagePath: "a.nupkg", ReleaseDir: "r", IconPath: "app.ico", SplashPath: "load.gif"},
			want: []string{
				"-releasify", "a.nupkg", "-releaseDir", "r", "-l", "Desktop,StartMenu",
				"-i", "app.ico", "-setupIcon", "app.ico", "-g", "load.gif",
			},
		},
	}

	r := NewRunner("Squirrel.exe", "", zap.NewNop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Args(tt.req))
		})
	}

	custom := NewRunner("Squirrel.exe", "Desktop", zap.NewNop())
	assert.Equal(t, "Desktop", custom.Args(Request{})[5])
}

// fakeTool writes an executable shell script standing in for the tool.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool is a shell script")
	}
	path := filepath.Join(t.TempDir(), "Squirrel.exe")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestRunPassesArguments(t *testing.T) {
	record := filepath.Join(t.TempDir(), "args.txt")
	tool := fakeTool(t, `echo releasing; printf '%s\n' "$@" > `+record)

	r := NewRunner(tool, "", zap.NewNop())
	req := Request{PackagePath: "acme.1.0.0.nupkg", ReleaseDir: "out dir", IconPath: "app.ico"}
	require.NoError(t, r.Run(context.Background(), req))

	got, err := os.ReadFile(record)
	require.NoError(t, err)
	assert.Equal(t, r.Args(req), strings.Split(strings.TrimSpace(string(got)), "\n"))
}

func TestRunExitCode(t *testing.T) {
	tool := fakeTool(t, "echo boom >&2; exit 3")

	err := NewRunner(tool, "", zap.NewNop()).Run(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 3")
}

func TestRunKilledOnCancel(t *testing.T) {
	tool := fakeTool(t, "exec sleep 30")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	err := NewRunner(tool, "", zap.NewNop()).Run(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunMissingTool(t *testing.T) {
	err := NewRunner(filepath.Join(t.TempDir(), "missing.exe"), "", zap.NewNop()).Run(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrToolNotFound)
}
