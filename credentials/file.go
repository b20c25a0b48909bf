package credentials

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ruteri/push-relay/interfaces"
)

// FileSource reads a service-account JSON key file.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Load(ctx context.Context) (*ServiceAccount, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &interfaces.ConfigurationError{Field: "credentials", Reason: "could not read key file", Err: err}
	}
	return ParseServiceAccount(data)
}

func (s *FileSource) Name() string {
	return "file-" + filepath.Base(s.path)
}
