package directory

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	errs "github.com/404minds/gt06-receiver/internal/errors"
)

// Static is a fixed imei to device id table. It is never written after construction.
type Static map[string]string

type staticFile struct {
	Devices map[string]string `yaml:"devices"`
}

// LoadStatic reads a YAML file of the form
//
//	devices:
//	  "123456789012345": "42"
func LoadStatic(path string) (Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read device file %s", path)
	}

	var file staticFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(errs.ErrInvalidConfig, "device file %s: %v", path, err)
	}
	for imei, deviceID := range file.Devices {
		if deviceID == "" {
			return nil, errors.Wrapf(errs.ErrInvalidConfig, "device file %s: empty device id for %s", path, imei)
		}
	}
	logger.Sugar().Infof("Loaded %d devices from %s", len(file.Devices), path)
	return Static(file.Devices), nil
}

func (s Static) Lookup(ctx context.Context, imei string) (string, error) {
	deviceID, ok := s[imei]
	if !ok {
		return "", errs.ErrUnknownDevice
	}
	return deviceID, nil
}
