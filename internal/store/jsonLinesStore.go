package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	configuredLogger "github.com/404minds/gt06-receiver/internal/logger"
	"github.com/404minds/gt06-receiver/internal/types"
)

var logger = configuredLogger.Logger

// JsonLinesStore appends one JSON document per position to File.
type JsonLinesStore struct {
	File        *os.File
	ProcessChan chan types.Position
	CloseChan   chan bool
}

func NewJsonLinesStore(path string) (*JsonLinesStore, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logger.Sugar().Infof("Created json file store at %s", file.Name())

	return &JsonLinesStore{
		File:        file,
		ProcessChan: make(chan types.Position, processQueueSize),
		CloseChan:   make(chan bool, 1),
	}, nil
}

func (s *JsonLinesStore) GetProcessChan() chan types.Position {
	return s.ProcessChan
}

func (s *JsonLinesStore) GetCloseChan() chan bool {
	return s.CloseChan
}

func (s *JsonLinesStore) Process(ctx context.Context) error {
	defer s.File.Close()

	for {
		select {
		case position := <-s.ProcessChan:
			s.save(position)
		case <-s.CloseChan:
			drain(s.ProcessChan, s.save)
			return nil
		case <-ctx.Done():
			drain(s.ProcessChan, s.save)
			return ctx.Err()
		}
	}
}

func (s *JsonLinesStore) save(position types.Position) {
	b, err := json.Marshal(position)
	if err != nil {
		logger.Error("failed to write record to file", zap.String("deviceId", position.DeviceID), zap.Error(err))
		return
	}
	fmt.Fprintln(s.File, string(b))
	s.File.Sync()
}
