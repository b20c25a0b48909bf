package flags

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnvFile(path string, log *slog.Logger) error {
	if path == "" {
		return nil
	}

	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug("No env file found", slog.String("path", path))
		return nil
	}
	if err != nil {
		return err
	}

	log.Info("Loaded env file", slog.String("path", path))
	return nil
}
