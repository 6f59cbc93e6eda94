package pipeline

import (
	"path/filepath"

	"squirrelctl/pkg/utils"
)

// Release artifact names produced by releasify.
const (
	ReleasesFile  = "RELEASES"
	InstallerFile = "Setup.exe"
)

func DeltaPackage(appID, version string) string {
	return appID + "-" + version + "-delta.nupkg"
}

func FullPackage(appID, version string) string {
	return appID + "-" + version + "-full.nupkg"
}

// Artifacts lists the release files of appID/version in releaseDir that
// mode uploads, in upload order. Files missing on disk are left out.
func Artifacts(releaseDir, appID, version string, mode Mode) []string {
	names := []string{ReleasesFile, DeltaPackage(appID, version)}
	if mode == Full {
		names = append(names, FullPackage(appID, version), InstallerFile)
	}

	var paths []string
	for _, name := range names {
		path := filepath.Join(releaseDir, name)
		if utils.FileExists(path) {
			paths = append(paths, path)
		}
	}
	return paths
}
