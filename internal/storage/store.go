// Package storage reads and writes whole objects in Google Cloud Storage or a local directory.
package storage

import (
	"errors"
	"path"
	"strings"
)

const (
	errMessageObjectNotFound = "object not found"
	errMessageInvalidBucket  = "bucket name is required"
	errMessageInvalidKey     = "object key must be a relative path without parent references"
)

var (
	// ErrObjectNotFound is returned when the requested object does not exist.
	ErrObjectNotFound = errors.New(errMessageObjectNotFound)
	errInvalidBucket  = errors.New(errMessageInvalidBucket)
	errInvalidKey     = errors.New(errMessageInvalidKey)
)

func validateLocation(bucket string, key string) error {
	if strings.TrimSpace(bucket) == "" || strings.ContainsAny(bucket, `/\`) {
		return errInvalidBucket
	}
	if strings.TrimSpace(key) == "" || path.IsAbs(key) || strings.Contains(key, `\`) {
		return errInvalidKey
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return errInvalidKey
		}
	}
	return nil
}
