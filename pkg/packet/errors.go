package packet

import "github.com/pkg/errors"

var (
	errMTUTooSmall             = errors.New("packet: mtu below the 64-byte minimum")
	errHeaderReserveExceedsMTU = errors.New("packet: header reserve leaves no payload budget")

	// ErrOverlappingFragment means two fragments of the same message
	// claim overlapping byte ranges.
	ErrOverlappingFragment = errors.New("packet: overlapping fragment ranges")
	// ErrInconsistentTotal means fragments of the same message disagree
	// on total_fragments.
	ErrInconsistentTotal = errors.New("packet: inconsistent total_fragments")
)
