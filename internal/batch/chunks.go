// Package batch splits ordered sequences into bounded chunks for bulk API calls.
package batch

import (
	"errors"
	"iter"
	"slices"
)

// ErrInvalidChunkSize is returned for a chunk size below one.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Chunks yields consecutive sub-slices of items holding at most size elements each.
// Concatenating the chunks reproduces items; empty input yields no chunks.
func Chunks[T any](items []T, size int) (iter.Seq[[]T], error) {
	if size < 1 {
		return nil, ErrInvalidChunkSize
	}
	return slices.Chunk(items, size), nil
}

// Count returns the number of chunks Chunks yields for length items.
func Count(length int, size int) int {
	if size < 1 || length <= 0 {
		return 0
	}
	return (length + size - 1) / size
}
