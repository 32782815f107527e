package main

import "errors"

var (
	errUnknownHook = errors.New("unknown hook")
	errNoFiles     = errors.New("no transcript files found")
)
