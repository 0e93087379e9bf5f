package tui

import (
	"fmt"
	"sort"

	"docchat/internal/walker"
)

// documentFile is a candidate document found under the working directory.
type documentFile struct {
	Path    string
	RelPath string
	Size    int64
}

// listDocuments walks root for files with the given extensions, sorted by
// relative path.
func listDocuments(root string, exts map[string]bool) ([]documentFile, error) {
	files, errs := walker.Walk(root, exts)
	var out []documentFile
	for f := range files {
		out = append(out, documentFile{Path: f.Path, RelPath: f.RelPath, Size: f.Size})
	}
	if err := <-errs; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out, nil
}

// formatSize returns a human-readable size string.
func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.0f KB", float64(bytes)/float64(kb))
	}
	return fmt.Sprintf("%d B", bytes)
}
