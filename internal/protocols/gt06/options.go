package gt06

import (
	"time"

	"github.com/pkg/errors"

	errs "github.com/404minds/gt06-receiver/internal/errors"
)

// ChecksumPolicy decides what happens to inbound frames whose crc does not match.
type ChecksumPolicy string

const (
	ChecksumIgnore ChecksumPolicy = "ignore"
	ChecksumLog    ChecksumPolicy = "log"
	ChecksumReject ChecksumPolicy = "reject"
)

// TimeMode selects how the six date/time bytes of a position become a timestamp.
type TimeMode string

const (
	// TimeModeLegacy feeds every component to lenient calendar arithmetic: the hour byte is added to
	// midnight as-is and out-of-range values roll over into the next unit (hour 24 is 00:00 next day).
	TimeModeLegacy TimeMode = "legacy"
	// TimeModeStrict reads the hour as a 24-hour field and rejects out-of-range components.
	TimeModeStrict TimeMode = "strict"
)

// CellIDMode selects how the 2-byte and 1-byte halves of the cell id are combined.
type CellIDMode string

const (
	// CellIDModeLegacy reproduces `high << 8 + low` evaluated with addition binding tighter than the
	// shift, i.e. high << ((8 + low) mod 32) on 32 bits.
	CellIDModeLegacy CellIDMode = "legacy"
	// CellIDModeCorrected computes high<<8 | low.
	CellIDModeCorrected CellIDMode = "corrected"
)

type Options struct {
	Checksum   ChecksumPolicy `yaml:"checksum"`
	TimeMode   TimeMode       `yaml:"timeMode"`
	CellIDMode CellIDMode     `yaml:"cellIdMode"`
	// LookupTimeout bounds a single device directory lookup during login; zero means unbounded.
	LookupTimeout time.Duration `yaml:"lookupTimeout"`
	// RequireLogin drops positions decoded before a successful login. They are still acknowledged.
	RequireLogin bool `yaml:"requireLogin"`
}

func DefaultOptions() Options {
	return Options{
		Checksum:      ChecksumIgnore,
		TimeMode:      TimeModeLegacy,
		CellIDMode:    CellIDModeLegacy,
		LookupTimeout: 5 * time.Second,
	}
}

func (o Options) Validate() error {
	switch o.Checksum {
	case ChecksumIgnore, ChecksumLog, ChecksumReject:
	default:
		return errors.Wrapf(errs.ErrInvalidConfig, "decoder.checksum: unknown policy %q", o.Checksum)
	}
	switch o.TimeMode {
	case TimeModeLegacy, TimeModeStrict:
	default:
		return errors.Wrapf(errs.ErrInvalidConfig, "decoder.timeMode: unknown mode %q", o.TimeMode)
	}
	switch o.CellIDMode {
	case CellIDModeLegacy, CellIDModeCorrected:
	default:
		return errors.Wrapf(errs.ErrInvalidConfig, "decoder.cellIdMode: unknown mode %q", o.CellIDMode)
	}
	if o.LookupTimeout < 0 {
		return errors.Wrapf(errs.ErrInvalidConfig, "decoder.lookupTimeout: negative duration %s", o.LookupTimeout)
	}
	return nil
}
