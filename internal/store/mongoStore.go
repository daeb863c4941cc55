package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/404minds/gt06-receiver/internal/types"
)

const positionsCollection = "positions"

// MongoStore inserts every position as a document of the positions collection.
type MongoStore struct {
	Collection  *mongo.Collection
	ProcessChan chan types.Position
	CloseChan   chan bool
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		Collection:  db.Collection(positionsCollection),
		ProcessChan: make(chan types.Position, processQueueSize),
		CloseChan:   make(chan bool, 1),
	}
}

func (s *MongoStore) GetProcessChan() chan types.Position {
	return s.ProcessChan
}

func (s *MongoStore) GetCloseChan() chan bool {
	return s.CloseChan
}

func (s *MongoStore) Process(ctx context.Context) error {
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

func (s *MongoStore) save(ctx context.Context, position types.Position) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.Collection.InsertOne(ctx, position); err != nil {
		logger.Error("failed to insert position", zap.String("deviceId", position.DeviceID), zap.Uint16("index", position.Index), zap.Error(err))
	}
}
