package delta

import "github.com/pkg/errors"

var (
	errNoReference  = errors.New("delta: no previous frame to decode against")
	errSizeMismatch = errors.New("delta: frame size does not match reference")
)
