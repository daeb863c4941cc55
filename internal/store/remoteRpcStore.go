package store

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/404minds/gt06-receiver/internal/types"
)

// RemoteRpcStore forwards every position to the AVLService InsertAVL call.
type RemoteRpcStore struct {
	ProcessChan       chan types.Position
	CloseChan         chan bool
	RemoteStoreClient AvlDataStoreClient
	Timeout           time.Duration
}

func NewRemoteRpcStore(client AvlDataStoreClient) *RemoteRpcStore {
	return &RemoteRpcStore{
		ProcessChan:       make(chan types.Position, processQueueSize),
		CloseChan:         make(chan bool, 1),
		RemoteStoreClient: client,
		Timeout:           5 * time.Second,
	}
}

func (s *RemoteRpcStore) GetProcessChan() chan types.Position {
	return s.ProcessChan
}

func (s *RemoteRpcStore) GetCloseChan() chan bool {
	return s.CloseChan
}

func (s *RemoteRpcStore) Process(ctx context.Context) error {
	save := func(position types.Position) { s.save(ctx, position) }
	for {
		select {
		case position := <-s.ProcessChan:
			save(position)
		case <-s.CloseChan:
			drain(s.ProcessChan, save)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *RemoteRpcStore) save(ctx context.Context, position types.Position) {
	record, err := structpb.NewStruct(position.Fields())
	if err != nil {
		logger.Error("failed to encode position", zap.String("deviceId", position.DeviceID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	if _, err := s.RemoteStoreClient.SavePosition(ctx, record); err != nil {
		logger.Error("failed to save position", zap.String("deviceId", position.DeviceID), zap.Uint16("index", position.Index), zap.Error(err))
	}
}
