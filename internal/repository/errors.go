package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrInsufficient indicates a conditional balance update could not be satisfied.
	ErrInsufficient = errors.New("repository: insufficient balance")
	// ErrDuplicate indicates a uniqueness constraint rejected the write.
	ErrDuplicate = errors.New("repository: duplicate record")
)
