package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultLocations returns a common set of paths to look for a
// configuration file named fileName belonging to appName:
//   - /etc/appName/fileName (not on windows)
//   - $HOME/appName/fileName
//   - $HOME/.appName/fileName
//   - ./fileName
func DefaultLocations(appName, fileName string) []string {
	var locations []string
	if runtime.GOOS != "windows" {
		locations = append(locations, filepath.Join("/etc", appName, fileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(home, appName, fileName))
		locations = append(locations, filepath.Join(home, "."+appName, fileName))
	}
	if cwd, err := os.Getwd(); err == nil {
		locations = append(locations, filepath.Join(cwd, fileName))
	}
	return locations
}
