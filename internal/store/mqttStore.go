package store

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/404minds/gt06-receiver/internal/types"
)

const unresolvedDeviceTopic = "unknown"

// Publisher is the part of mqtt.Client the store needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MqttStore publishes every position as JSON to <TopicPrefix>/<deviceId>.
type MqttStore struct {
	Client      Publisher
	TopicPrefix string
	QoS         byte
	ProcessChan chan types.Position
	CloseChan   chan bool
}

// ConnectMqtt connects a paho client to broker.
func ConnectMqtt(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "failed to connect to mqtt broker %s", broker)
	}
	logger.Sugar().Infof("Connected to MQTT broker at %s", broker)
	return client, nil
}

func NewMqttStore(client Publisher, topicPrefix string, qos byte) *MqttStore {
	return &MqttStore{
		Client:      client,
		TopicPrefix: topicPrefix,
		QoS:         qos,
		ProcessChan: make(chan types.Position, processQueueSize),
		CloseChan:   make(chan bool, 1),
	}
}

func (s *MqttStore) GetProcessChan() chan types.Position {
	return s.ProcessChan
}

func (s *MqttStore) GetCloseChan() chan bool {
	return s.CloseChan
}

func (s *MqttStore) Process(ctx context.Context) error {
	for {
		select {
		case position := <-s.ProcessChan:
			s.save(position)
		case <-s.CloseChan:
			drain(s.ProcessChan, s.save)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *MqttStore) Topic(position types.Position) string {
	deviceID := position.DeviceID
	if deviceID == "" {
		deviceID = unresolvedDeviceTopic
	}
	return s.TopicPrefix + "/" + deviceID
}

func (s *MqttStore) save(position types.Position) {
	payload, err := json.Marshal(position)
	if err != nil {
		logger.Error("failed to encode position", zap.String("deviceId", position.DeviceID), zap.Error(err))
		return
	}

	token := s.Client.Publish(s.Topic(position), s.QoS, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		logger.Warn("timed out publishing position", zap.String("topic", s.Topic(position)))
		return
	}
	if err := token.Error(); err != nil {
		logger.Error("failed to publish position", zap.String("topic", s.Topic(position)), zap.Error(err))
	}
}
