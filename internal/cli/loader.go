package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/horizon/internal/harness"
	"github.com/roach88/horizon/internal/plan"
	"github.com/roach88/horizon/internal/store"
	"github.com/roach88/horizon/internal/store/kv"
)

// Error codes for CLI responses (E001-E099).
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No scenario or model files found
	ErrCodeLoadFailed  = "E004" // Scenario or model load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeStoreFailed = "E006" // History store could not be opened or read
	ErrCodeWriteFailed = "E007" // File write error
)

// LoadError represents an error that occurred while locating inputs.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// findScenarios lists scenario files under path whose base name (without
// extension) matches filter. An empty filter matches everything.
func findScenarios(path, filter string) ([]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("scenario path not found: %s", path)}
	}
	files, err := harness.FindScenarios(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: err.Error()}
	}
	if filter == "" {
		return files, nil
	}

	var out []string
	for _, f := range files {
		base := filepath.Base(f)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		matched, err := filepath.Match(filter, name)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("invalid filter pattern: %v", err)}
		}
		if matched {
			out = append(out, f)
		}
	}
	return out, nil
}

// StoreOptions selects a history backend.
type StoreOptions struct {
	Database string // SQLite file
	KVDir    string // BadgerDB directory
}

// Enabled reports whether a backend was selected.
func (o StoreOptions) Enabled() bool {
	return o.Database != "" || o.KVDir != ""
}

// backend is an open history store.
type backend interface {
	plan.Persister
	io.Closer
}

var errBothBackends = errors.New("--db and --kv are mutually exclusive")

// openBackend opens the selected history store. It returns nil when no
// backend was selected.
func openBackend(opts StoreOptions, logger *slog.Logger) (backend, error) {
	switch {
	case opts.Database != "" && opts.KVDir != "":
		return nil, errBothBackends
	case opts.Database != "":
		logger.Debug("opening history database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			return nil, err
		}
		return st, nil
	case opts.KVDir != "":
		logger.Debug("opening history kv store", "path", opts.KVDir)
		cfg := kv.DefaultConfig(opts.KVDir)
		cfg.Logger = logger
		st, err := kv.Open(cfg)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, nil
}
