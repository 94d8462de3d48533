package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/hausnet/heartbeat-agent/pkg/file"
)

const (
	// PayloadOnline and PayloadOffline are published to the availability topic.
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// MQTTClient defines the interface for an MQTT client.
type MQTTClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// Options holds the broker connection settings.
type Options struct {
	Broker             string
	ClientID           string
	Username           string
	Password           string
	CACertificate      string // Path to a PEM CA bundle; empty disables TLS setup
	InsecureSkipVerify bool
	AvailabilityTopic  string // Retained online/offline topic; empty disables the last will
	ConnectTimeout     time.Duration
}

// MqttService provides methods for MQTT operations.
type MqttService struct {
	client            MQTTClient
	fileClient        file.FileOperations
	availabilityTopic string
}

// NewMqttService creates a new MqttService instance.
func NewMqttService(fileClient file.FileOperations) *MqttService {
	return &MqttService{
		fileClient: fileClient,
	}
}

// Initialize sets up the MQTT client and connects to the broker.
func (s *MqttService) Initialize(o Options) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	if o.ConnectTimeout > 0 {
		opts.SetConnectTimeout(o.ConnectTimeout)
	}
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	if o.CACertificate != "" {
		tlsConfig, err := s.tlsConfig(o.CACertificate, o.InsecureSkipVerify)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	if o.AvailabilityTopic != "" {
		s.availabilityTopic = o.AvailabilityTopic
		opts.SetWill(o.AvailabilityTopic, PayloadOffline, 1, true)
		opts.SetOnConnectHandler(func(c mqtt.Client) {
			c.Publish(o.AvailabilityTopic, 1, true, PayloadOnline)
		})
	}

	client := mqtt.NewClient(opts)
	s.client = client

	token := s.Connect()
	if !token.WaitTimeout(connectWait(o.ConnectTimeout)) {
		return fmt.Errorf("timed out connecting to MQTT broker %s", o.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", o.Broker, err)
	}
	return nil
}

func connectWait(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 30 * time.Second
	}
	return timeout
}

func (s *MqttService) tlsConfig(caCertPath string, insecure bool) (*tls.Config, error) {
	caCert, err := s.fileClient.ReadFileRaw(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to append CA certificate")
	}
	return &tls.Config{
		RootCAs:            caCertPool,
		InsecureSkipVerify: insecure,
	}, nil
}

// Connect connects to the MQTT broker.
func (s *MqttService) Connect() mqtt.Token {
	return s.client.Connect()
}

// Publish sends a message to the specified topic.
func (s *MqttService) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return s.client.Publish(topic, qos, retained, payload)
}

// Subscribe subscribes to the specified topic with a message handler.
func (s *MqttService) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return s.client.Subscribe(topic, qos, callback)
}

// Unsubscribe unsubscribes from the specified topics.
func (s *MqttService) Unsubscribe(topics ...string) mqtt.Token {
	return s.client.Unsubscribe(topics...)
}

// Disconnect marks the agent offline and disconnects the MQTT client.
func (s *MqttService) Disconnect(quiesce uint) {
	if s.availabilityTopic != "" {
		s.client.Publish(s.availabilityTopic, 1, true, PayloadOffline).WaitTimeout(time.Second)
	}
	s.client.Disconnect(quiesce)
}
