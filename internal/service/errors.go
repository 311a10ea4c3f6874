package service

import "errors"

var (
	// ErrPersistence wraps every failed state or session write.
	ErrPersistence = errors.New("persistence failure")
	// ErrQueueFull is returned by Submit when the device's shard is saturated.
	ErrQueueFull = errors.New("engine queue full")
	// ErrEngineClosed is returned by Submit after Close.
	ErrEngineClosed = errors.New("engine closed")
	// ErrDeviceNotFound is returned for devices the engine has never seen.
	ErrDeviceNotFound = errors.New("device not found")
)
