package mqtt

import "errors"

var (
	// ErrNotConnected is returned when publishing without a broker connection.
	ErrNotConnected = errors.New("mqtt: not connected")
	// ErrPublishFailed is returned once every publish attempt failed.
	ErrPublishFailed = errors.New("mqtt: publish failed")
)
