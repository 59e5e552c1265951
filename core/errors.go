package core

import "errors"

var (
	ErrInvalidConfig       = errors.New("invalid config")
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrUnsupportedBackend  = errors.New("unsupported audio backend")
	ErrAppClosed           = errors.New("app closed")
)
