package main

import (
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/404minds/gt06-receiver/internal/config"
	"github.com/404minds/gt06-receiver/internal/directory"
	errs "github.com/404minds/gt06-receiver/internal/errors"
	"github.com/404minds/gt06-receiver/internal/store"
)

// closers collects what main has to release on shutdown.
type closers []func()

func (c closers) closeAll() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func dialRemoteStore(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.Wrapf(err, "did not connect to %s", addr)
	}
	return conn, nil
}

func buildDirectory(cfg config.DirectoryConfig, cleanup *closers) (directory.Directory, error) {
	var devices directory.Directory

	switch cfg.Type {
	case config.DirectoryStatic:
		static, err := directory.LoadStatic(cfg.File)
		if err != nil {
			return nil, err
		}
		devices = static
	case config.DirectoryMongo:
		db, err := directory.ConnectMongoDB(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		devices = directory.NewMongo(db)
	case config.DirectoryRemote:
		conn, err := dialRemoteStore(cfg.RemoteAddr)
		if err != nil {
			return nil, err
		}
		*cleanup = append(*cleanup, func() { conn.Close() })
		devices = directory.NewRemote(store.NewCustomAvlDataStoreClient(conn))
	default:
		return nil, errors.Wrapf(errs.ErrInvalidConfig, "directory.type: unknown type %q", cfg.Type)
	}

	if cfg.RedisURL == "" {
		return devices, nil
	}
	client, err := directory.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Sugar().Warnf("Device cache disabled: %v", err)
		return devices, nil
	}
	*cleanup = append(*cleanup, func() { client.Close() })
	return directory.NewCached(devices, client, cfg.CacheTTL), nil
}

func buildStore(cfg config.StoreConfig, cleanup *closers) (store.Store, error) {
	switch cfg.Type {
	case config.StoreLocal:
		jsonStore, err := store.NewJsonLinesStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return jsonStore, nil
	case config.StoreRemote:
		conn, err := dialRemoteStore(cfg.RemoteAddr)
		if err != nil {
			return nil, err
		}
		*cleanup = append(*cleanup, func() { conn.Close() })
		return store.NewRemoteRpcStore(store.NewCustomAvlDataStoreClient(conn)), nil
	case config.StoreMongo:
		db, err := directory.ConnectMongoDB(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return store.NewMongoStore(db), nil
	case config.StoreMqtt:
		client, err := store.ConnectMqtt(cfg.MqttBroker, "gt06-receiver")
		if err != nil {
			return nil, err
		}
		*cleanup = append(*cleanup, func() { client.Disconnect(250) })
		return store.NewMqttStore(client, cfg.MqttTopic, cfg.MqttQoS), nil
	default:
		return nil, errors.Wrapf(errs.ErrInvalidConfig, "store.type: unknown type %q", cfg.Type)
	}
}
