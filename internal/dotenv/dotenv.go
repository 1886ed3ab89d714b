// Package dotenv loads KEY=VALUE files into the process environment for the
// command-line tools. Variables already present in the environment win.
package dotenv

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// EnvFile names the variable that overrides the default ".env" path.
const EnvFile = "PASETOX_ENV_FILE"

// DefaultPath returns $PASETOX_ENV_FILE or ".env".
func DefaultPath() string {
	if path := os.Getenv(EnvFile); path != "" {
		return path
	}
	return ".env"
}

// Load reads path and sets every variable that is not already set. A missing
// file is not an error. Malformed lines are reported to logger and skipped.
func Load(path string, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			if logger != nil {
				logger.Warn("skipping malformed env line", "file", filepath.Base(path), "line", lineNum)
			}
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "" {
			continue
		}
		if _, present := os.LookupEnv(key); present {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return scanner.Err()
}
