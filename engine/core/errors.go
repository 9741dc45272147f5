package core

import (
	"errors"
	"fmt"
)

var (
	ErrSwapchainBooting   = errors.New("swapchain resized or recreated, booting")
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	ErrNotInitialized     = errors.New("renderer not initialized")
	ErrCapacityExceeded   = errors.New("instance capacity exceeded")
	ErrFenceTimeout       = errors.New("fence wait timed out")
	ErrNoMemoryType       = errors.New("no compatible memory type")
)

// FatalError marks a failure the renderer cannot recover from. The caller is
// expected to shut down.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as a FatalError. A nil err stays nil and an error that is
// already fatal is returned unchanged.
func Fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return err
	}
	return &FatalError{Op: op, Err: err}
}

// IsFatal reports whether any error in err's chain is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// CapacityError is returned when a frame carries more instances of a
// category than its buffers hold and the overflow policy rejects it.
type CapacityError struct {
	Category  string
	Requested int
	Max       int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %d instances requested, max %d", e.Category, e.Requested, e.Max)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}
