// Package scan locates demo input videos on disk.
package scan

import (
	"io/fs"
	"path/filepath"
	"strings"
)

var videoExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
}

// FindVideos walks root and returns video file paths. Files whose names
// contain "crash" or "accident" are preferred; when none match, all video
// files are returned.
func FindVideos(root string) ([]string, error) {
	var crashVideos []string
	var allVideos []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		if !videoExtensions[filepath.Ext(name)] {
			return nil
		}
		allVideos = append(allVideos, path)
		if strings.Contains(name, "crash") || strings.Contains(name, "accident") {
			crashVideos = append(crashVideos, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(crashVideos) > 0 {
		return crashVideos, nil
	}
	return allVideos, nil
}
