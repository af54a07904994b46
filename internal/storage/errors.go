package storage

import (
	"errors"
	"fmt"

	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

var errNotObject = errors.New("not an object")

func fieldError(key, want string) error {
	return fmt.Errorf("%q must be %s", key, want)
}

func invalid(format string, args ...any) error {
	return flowerr.Errorf(flowerr.CodeSnapshotInvalid, format, args...)
}
