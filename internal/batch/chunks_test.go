package batch_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/f-sync/listsync/internal/batch"
)

func sequence(length int) []int {
	items := make([]int, length)
	for index := range items {
		items[index] = index + 1
	}
	return items
}

func TestChunks(t *testing.T) {
	testCases := []struct {
		name          string
		length        int
		size          int
		expectedSizes []int
	}{
		{name: "empty input", length: 0, size: 100, expectedSizes: nil},
		{name: "shorter than size", length: 7, size: 100, expectedSizes: []int{7}},
		{name: "exact multiple", length: 200, size: 100, expectedSizes: []int{100, 100}},
		{name: "remainder chunk", length: 250, size: 100, expectedSizes: []int{100, 100, 50}},
		{name: "size one", length: 3, size: 1, expectedSizes: []int{1, 1, 1}},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			items := sequence(testCase.length)
			chunks, err := batch.Chunks(items, testCase.size)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var sizes []int
			var concatenated []int
			for chunk := range chunks {
				if len(chunk) > testCase.size {
					t.Fatalf("chunk of %d exceeds size %d", len(chunk), testCase.size)
				}
				sizes = append(sizes, len(chunk))
				concatenated = append(concatenated, chunk...)
			}

			if !slices.Equal(sizes, testCase.expectedSizes) {
				t.Fatalf("chunk sizes = %v, want %v", sizes, testCase.expectedSizes)
			}
			if len(sizes) != batch.Count(testCase.length, testCase.size) {
				t.Fatalf("chunk count %d differs from Count %d", len(sizes), batch.Count(testCase.length, testCase.size))
			}
			if !slices.Equal(concatenated, items) && testCase.length > 0 {
				t.Fatalf("concatenated chunks %v do not reproduce input", concatenated)
			}
		})
	}
}

func TestChunksRejectsInvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		if _, err := batch.Chunks([]int{1}, size); !errors.Is(err, batch.ErrInvalidChunkSize) {
			t.Fatalf("size %d: expected ErrInvalidChunkSize, got %v", size, err)
		}
	}
}
