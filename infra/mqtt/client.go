package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/planboard/core/events"
	coremqtt "github.com/kilianp07/planboard/core/mqtt"
	"github.com/kilianp07/planboard/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string          `json:"broker" yaml:"broker"`
	ClientID    string          `json:"client_id" yaml:"client_id"`
	Username    string          `json:"username" yaml:"username"`
	Password    string          `json:"password" yaml:"password"`
	TopicPrefix string          `json:"topic_prefix" yaml:"topic_prefix"`
	UseTLS      bool            `json:"use_tls" yaml:"use_tls"`
	ClientCert  string          `json:"client_cert" yaml:"client_cert"`
	ClientKey   string          `json:"client_key" yaml:"client_key"`
	CABundle    string          `json:"ca_bundle" yaml:"ca_bundle"`
	AuthMethod  string          `json:"auth_method" yaml:"auth_method"`
	QoS         map[string]byte `json:"qos" yaml:"qos"`
	Retain      bool            `json:"retain" yaml:"retain"`
	LWTTopic    string          `json:"lwt_topic" yaml:"lwt_topic"`
	LWTPayload  string          `json:"lwt_payload" yaml:"lwt_payload"`
	LWTQoS      byte            `json:"lwt_qos" yaml:"lwt_qos"`
	LWTRetain   bool            `json:"lwt_retain" yaml:"lwt_retain"`
	MaxRetries  int             `json:"max_retries" yaml:"max_retries"`
	BackoffMS   int             `json:"backoff_ms" yaml:"backoff_ms"`
	TLSConfig   *tls.Config     `json:"-" yaml:"-"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// PahoPublisher implements core/mqtt.Publisher using Eclipse Paho.
type PahoPublisher struct {
	cli        pahoClient
	prefix     string
	qos        map[string]byte
	retain     bool
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
	now        func() time.Time
}

var _ coremqtt.Publisher = (*PahoPublisher)(nil)

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoPublisher connects to the MQTT broker.
func NewPahoPublisher(cfg Config) (*PahoPublisher, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_publisher")
	p := &PahoPublisher{
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		now:        time.Now,
	}
	if p.prefix == "" {
		p.prefix = "planboard"
	}
	if p.maxRetries <= 0 {
		p.maxRetries = 3
	}
	if p.backoff <= 0 {
		p.backoff = 100 * time.Millisecond
	}

	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	p.cli = c
	return p, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// SignalMessage is the wire form of a scheduler signal.
type SignalMessage struct {
	MessageID string `json:"message_id"`
	Trigger   string `json:"trigger"`
	Period    string `json:"period"`
	PtuIndex  int    `json:"ptu_index,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// DocumentMessage is the wire form of a document status change.
type DocumentMessage struct {
	MessageID         string `json:"message_id"`
	DocumentType      string `json:"document_type"`
	SequenceNumber    int64  `json:"sequence_number"`
	ParticipantDomain string `json:"participant_domain"`
	ConnectionGroupID string `json:"connection_group_id"`
	Period            string `json:"period"`
	From              string `json:"from"`
	To                string `json:"to"`
	Reason            string `json:"reason,omitempty"`
	Timestamp         int64  `json:"timestamp"`
}

// PublishSignal sends sig to <prefix>/signals/<trigger>.
func (p *PahoPublisher) PublishSignal(ctx context.Context, sig events.Signal) (string, error) {
	period, idx := sig.Target()
	msg := SignalMessage{
		MessageID: uuid.NewString(),
		Trigger:   string(sig.Trigger()),
		Period:    period.Format(time.DateOnly),
		PtuIndex:  idx,
		Timestamp: p.now().UnixMilli(),
	}
	topic := fmt.Sprintf("%s/signals/%s", p.prefix, sig.Trigger())
	return msg.MessageID, p.publish(ctx, topic, p.qosFor("signal"), msg)
}

// PublishDocumentEvent sends ev to <prefix>/documents/<type>.
func (p *PahoPublisher) PublishDocumentEvent(ctx context.Context, ev events.DocumentEvent) (string, error) {
	msg := DocumentMessage{
		MessageID:         uuid.NewString(),
		DocumentType:      ev.Key.Type.String(),
		SequenceNumber:    ev.Key.SequenceNumber,
		ParticipantDomain: ev.Key.ParticipantDomain,
		ConnectionGroupID: ev.ConnectionGroupID,
		Period:            ev.Period.Format(time.DateOnly),
		From:              ev.From.String(),
		To:                ev.To.String(),
		Reason:            ev.Reason,
		Timestamp:         p.now().UnixMilli(),
	}
	topic := fmt.Sprintf("%s/documents/%s", p.prefix, strings.ToLower(ev.Key.Type.String()))
	return msg.MessageID, p.publish(ctx, topic, p.qosFor("document"), msg)
}

func (p *PahoPublisher) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

func (p *PahoPublisher) publish(ctx context.Context, topic string, qos byte, msg any) error {
	if p.cli == nil || !p.cli.IsConnected() {
		return coremqtt.ErrNotConnected
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, p.retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("published to %s", topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", coremqtt.ErrPublishFailed, topic, p.maxRetries+1, publishErr)
}

// SignalHandler adapts the publisher to a scheduler callback.
func SignalHandler(p coremqtt.Publisher) func(events.Signal) error {
	return func(sig events.Signal) error {
		_, err := p.PublishSignal(context.Background(), sig)
		return err
	}
}

// DocumentHandler adapts the publisher to a ledger callback.
func DocumentHandler(p coremqtt.Publisher) func(events.DocumentEvent) error {
	return func(ev events.DocumentEvent) error {
		_, err := p.PublishDocumentEvent(context.Background(), ev)
		return err
	}
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoPublisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
