package handlers

import (
	"bufio"
	"context"
	"io"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	errs "github.com/404minds/gt06-receiver/internal/errors"
	configuredLogger "github.com/404minds/gt06-receiver/internal/logger"
	"github.com/404minds/gt06-receiver/internal/protocols/gt06"
	"github.com/404minds/gt06-receiver/internal/store"
	"github.com/404minds/gt06-receiver/internal/types"
)

var logger = configuredLogger.Logger

type TcpHandler struct {
	decoder   *gt06.Decoder
	dataStore store.Store
	feed      *LiveFeed
}

// HandleConnection decodes frames from conn until the device disconnects or ctx ends. Frames are
// decoded one at a time against a session private to this connection.
func (t *TcpHandler) HandleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	remote := conn.RemoteAddr().String()
	reader := bufio.NewReader(conn)
	session := &gt06.Session{}

	for {
		frame, err := gt06.ReadFrame(reader)
		if errors.Is(err, errs.ErrMalformedFrame) {
			logger.Warn("skipping malformed frame", zap.String("remote", remote), zap.Error(err))
			continue
		}
		if err == io.EOF {
			logger.Sugar().Infof("Connection %s closed", remote)
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				logger.Sugar().Errorf("Error reading from connection %s: %v", remote, err)
			}
			return
		}

		position, err := t.decoder.Decode(ctx, session, frame, conn)
		if errors.Is(err, errs.ErrMalformedFrame) || errors.Is(err, errs.ErrBadCrc) {
			logger.Warn("dropping undecodable frame", zap.String("remote", remote), zap.String("imei", session.IMEI), zap.Error(err))
			continue
		}
		if position != nil {
			if pushErr := t.push(ctx, *position); pushErr != nil {
				logger.Warn("position not stored", zap.String("deviceId", position.DeviceID), zap.Error(pushErr))
				return
			}
		}
		if err != nil {
			logger.Sugar().Errorf("Error writing to connection %s: %v", remote, err)
			return
		}
	}
}

func (t *TcpHandler) push(ctx context.Context, position types.Position) error {
	select {
	case t.dataStore.GetProcessChan() <- position:
	case <-ctx.Done():
		return errors.Wrap(errs.ErrStoreClosed, ctx.Err().Error())
	}
	if t.feed != nil {
		t.feed.Broadcast(position)
	}
	return nil
}
