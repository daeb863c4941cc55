package directory

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	errs "github.com/404minds/gt06-receiver/internal/errors"
)

const devicesCollection = "devices"

type deviceDocument struct {
	IMEI     string `bson:"imei"`
	DeviceID string `bson:"deviceId"`
}

// Mongo looks devices up in the devices collection by their imei field.
type Mongo struct {
	collection *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{collection: db.Collection(devicesCollection)}
}

// ConnectMongoDB connects and pings the server before handing out the database.
func ConnectMongoDB(uri, database string) (*mongo.Database, error) {
	if uri == "" {
		return nil, errors.Wrap(errs.ErrInvalidConfig, "mongo uri not provided")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, errors.Wrap(err, "failed to ping mongodb")
	}

	logger.Sugar().Infof("Connected to MongoDB database %s", database)
	return client.Database(database), nil
}

func (m *Mongo) Lookup(ctx context.Context, imei string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var device deviceDocument
	err := m.collection.FindOne(ctx, bson.M{"imei": imei}).Decode(&device)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", errs.ErrUnknownDevice
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to look up imei %s", imei)
	}
	if device.DeviceID == "" {
		return "", errs.ErrUnknownDevice
	}
	return device.DeviceID, nil
}
