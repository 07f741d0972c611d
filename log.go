package gopool

import "github.com/rs/zerolog"

// defaultLogger is used by a Config that doesn't set one explicitly. It
// discards everything, mirroring the teacher config's "every hook defaults
// to a no-op" convention.
var defaultLogger = zerolog.Nop()
