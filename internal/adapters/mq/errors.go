package mq

import "errors"

// Sentinel kinds for broker errors.
var (
	ErrNotConnected = errors.New("broker is not connected")
	ErrTopology     = errors.New("declare broker topology")
	ErrPublish      = errors.New("publish message")
	ErrHandlerPanic = errors.New("event handler panicked")
)
