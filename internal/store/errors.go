package store

import "errors"

var (
	ErrNotFound     = errors.New("record not found")
	ErrUnknownTable = errors.New("unknown table")
	ErrDeleted      = errors.New("record is deleted")
)
