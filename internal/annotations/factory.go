package annotations

import (
	"context"
	"fmt"
	"strings"
)

// Options selects and configures a Repository backend.
type Options struct {
	// Backend is auto, file, postgres or memory. auto picks postgres when
	// DatabaseURL is set and the file backend otherwise.
	Backend     string
	Path        string
	DatabaseURL string
	Document    string
}

func NewRepository(ctx context.Context, opts Options) (Repository, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" || backend == "auto" {
		backend = "file"
		if strings.TrimSpace(opts.DatabaseURL) != "" {
			backend = "postgres"
		}
	}
	switch backend {
	case "file":
		return NewFileRepository(opts.Path)
	case "postgres":
		if strings.TrimSpace(opts.DatabaseURL) == "" {
			return nil, fmt.Errorf("postgres annotation backend requires a database url")
		}
		return NewPostgresRepository(ctx, opts.DatabaseURL, opts.Document)
	case "memory":
		return NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unknown annotation backend %q (expected auto|file|postgres|memory)", opts.Backend)
	}
}
