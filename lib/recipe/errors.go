package recipe

import "errors"

var (
	ErrNoPackages          = errors.New("package list is empty")
	ErrInvalidPackageName  = errors.New("invalid package name")
	ErrUnknownAptOption    = errors.New("unknown apt option")
	ErrInvalidWorkdir      = errors.New("workdir must be an absolute path")
	ErrInvalidEntrypoint   = errors.New("invalid entrypoint")
	ErrInvalidBase         = errors.New("invalid base image")
	ErrInvalidRequirements = errors.New("invalid requirements mode")
)
