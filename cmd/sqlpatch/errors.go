package main

import "errors"

var (
	ErrEmptySelector       = errors.New("selector expression is empty")
	ErrUnknownSelectorKind = errors.New("unknown selector kind")
	ErrSelectorArgs        = errors.New("wrong arguments for selector kind")
	ErrFixtureCount        = errors.New("each --select needs a matching --fixture")
	ErrNoDatabase          = errors.New("no database configured for environment")
)
