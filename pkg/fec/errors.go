package fec

import "github.com/pkg/errors"

var (
	// ErrUnrecoverable is returned by Decode when more shards were erased
	// than the configured parity count can repair.
	ErrUnrecoverable = errors.New("fec: too many erasures to recover block")

	errBadParameters = errors.New("fec: bad parameters")
	errUnequalShards = errors.New("fec: shards must be equal length")
	errNotAShard     = errors.New("fec: envelope carries no FecInfo/FragmentInfo")
)

func wrapEncode(err error) error {
	return errors.Wrap(err, "fec: encode")
}
