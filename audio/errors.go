package audio

import "errors"

var (
	ErrEmptyURL            = errors.New("stream url is empty")
	ErrOpenFailed          = errors.New("stream open failed")
	ErrInvalidHandle       = errors.New("stream handle is invalid")
	ErrCloseDeferred       = errors.New("stream close deferred")
	ErrPlaybackStartFailed = errors.New("stream playback start failed")
)
