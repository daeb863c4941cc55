package directory

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	errs "github.com/404minds/gt06-receiver/internal/errors"
	"github.com/404minds/gt06-receiver/internal/store"
)

// Remote asks the AVLService VerifyDevice call.
type Remote struct {
	client store.AvlDataStoreClient
}

func NewRemote(client store.AvlDataStoreClient) *Remote {
	return &Remote{client: client}
}

func (r *Remote) Lookup(ctx context.Context, imei string) (string, error) {
	reply, err := r.client.VerifyDevice(ctx, wrapperspb.String(imei))
	if status.Code(err) == codes.NotFound {
		return "", errs.ErrUnknownDevice
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to verify imei %s", imei)
	}
	if reply.GetValue() == "" {
		return "", errs.ErrUnknownDevice
	}
	return reply.GetValue(), nil
}
