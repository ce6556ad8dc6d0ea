package compliance

import (
	"errors"
	"fmt"
)

var (
	// ErrTickInProgress is returned when a tick is requested while another runs.
	ErrTickInProgress = errors.New("compliance: tick already in progress")
	// ErrStorageUnavailable wraps ticket or watermark storage failures.
	ErrStorageUnavailable = errors.New("compliance: storage unavailable")
	// ErrDispatchFailure wraps notification delivery failures.
	ErrDispatchFailure = errors.New("compliance: dispatch failed")
)

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

func dispatchError(target string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDispatchFailure, target, err)
}
