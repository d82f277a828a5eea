package build

import "errors"

var (
	ErrNotFound = errors.New("build not found")
	ErrLowDisk  = errors.New("not enough free disk space")
)
