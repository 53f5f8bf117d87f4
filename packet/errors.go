package packet

import "github.com/pkg/errors"

// ErrOutOfRange is returned by header accessors when the requested view
// would read past the end of the captured frame.
var ErrOutOfRange = errors.New("packet: offset out of range")

// ErrPoolExhausted is returned by Pool.Get when no slab is available; a
// Pool never grows past its startup sizing.
var ErrPoolExhausted = errors.New("packet: pool exhausted")
