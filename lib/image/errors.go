package image

import "errors"

var (
	// ErrRefNotFound means the layout carries no image under the requested name.
	ErrRefNotFound = errors.New("reference not found in layout")
)
