package sequencer

import (
	"errors"
	"fmt"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// Error kinds attached with ftag.
const (
	KindConfig ftag.Kind = "CONFIGURATION"
	KindRange  ftag.Kind = "RANGE"
)

var (
	ErrInvalidTempo  = errors.New("invalid tempo")
	ErrMalformedData = errors.New("malformed project data")
	ErrInvalidRange  = errors.New("invalid scan range")
	ErrInvalidLoop   = errors.New("invalid loop range")
	ErrNoPattern     = errors.New("no such pattern")
	ErrNotRunning    = errors.New("manager loop not running")
)

func configError(sentinel error, format string, args ...any) error {
	return fault.Wrap(sentinel,
		ftag.With(KindConfig),
		fmsg.With(fmt.Sprintf(format, args...)),
	)
}

func rangeError(sentinel error, format string, args ...any) error {
	return fault.Wrap(sentinel,
		ftag.With(KindRange),
		fmsg.With(fmt.Sprintf(format, args...)),
	)
}

// IsConfigError reports whether err was caused by invalid tempo or project data.
func IsConfigError(err error) bool {
	return err != nil && ftag.Get(err) == KindConfig
}

// IsRangeError reports whether err was caused by an inverted or negative range.
func IsRangeError(err error) bool {
	return err != nil && ftag.Get(err) == KindRange
}
