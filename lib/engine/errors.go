package engine

import "errors"

var (
	ErrNoEngine      = errors.New("no container engine available (docker or podman)")
	ErrUnknownEngine = errors.New("unknown container engine")
	ErrImageNotFound = errors.New("image not found in engine store")
)
