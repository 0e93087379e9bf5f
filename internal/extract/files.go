package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// ReadFiles loads each path into a Document named after the file's base
// name. A file that cannot be read still yields a Document; extracting it
// reports the read error, so it is skipped like any unreadable upload.
func ReadFiles(paths []string) []Document {
	docs := make([]Document, 0, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		data, err := os.ReadFile(p)
		if err != nil {
			docs = append(docs, FailedDocument(name, err))
			continue
		}
		docs = append(docs, Document{Name: name, Data: bytes.NewReader(data)})
	}
	return docs
}

// FailedDocument returns a Document whose extraction fails with err.
func FailedDocument(name string, err error) Document {
	return Document{Name: name, Data: failedReader{err: err}}
}

type failedReader struct{ err error }

func (f failedReader) Read([]byte) (int, error) { return 0, f.err }

func (f failedReader) Seek(int64, int) (int64, error) {
	return 0, fmt.Errorf("open: %w", f.err)
}
