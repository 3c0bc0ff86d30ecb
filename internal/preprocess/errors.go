package preprocess

import (
	"errors"
	"fmt"
)

var errNilImage = errors.New("input image is nil")

// DecodeError reports raster input that cannot be interpreted as an image.
// It is a client-side failure: the caller sent bytes or a buffer that do not
// describe a supported image.
type DecodeError struct {
	Operation string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error in %s: %v", e.Operation, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
