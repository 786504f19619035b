package repository

import (
	"errors"

	"github.com/okian/aireview/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	// ErrNotFound is model.ErrNotFound so callers outside this package can
	// match it without importing the repository.
	ErrNotFound     = model.ErrNotFound
	ErrInvalidLimit = errors.New("invalid list limit")
	ErrEmptyID      = errors.New("empty id")
	ErrOpenDatabase = errors.New("open database")
)
