package pipeline

import "errors"

var (
	// ErrVerifyFailed means the built image does not match the recipe.
	ErrVerifyFailed = errors.New("image verification failed")
)
