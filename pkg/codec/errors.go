package codec

import "github.com/pkg/errors"

// Parse errors returned by Decode. Callers should compare with errors.Is;
// the wrapped cause (if any) is preserved by pkg/errors.
var (
	ErrBadMagic           = errors.New("codec: bad magic bytes")
	ErrUnsupportedVersion = errors.New("codec: unsupported version")
	ErrTruncated          = errors.New("codec: truncated input")
	ErrOversizedField     = errors.New("codec: field exceeds hard cap")
)
