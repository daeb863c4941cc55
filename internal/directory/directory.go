// Package directory resolves the identifier a tracker logs in with to the platform device id.
//
// Every implementation answers errs.ErrUnknownDevice for identifiers it does not know and any other
// error for lookups that could not be completed. All of them are safe for concurrent use.
package directory

import (
	"context"

	configuredLogger "github.com/404minds/gt06-receiver/internal/logger"
)

var logger = configuredLogger.Logger

type Directory interface {
	Lookup(ctx context.Context, imei string) (string, error)
}
