// Package mqtt publishes ACS decisions and state transitions over a
// paho client, with message batching and a fixed-window rate limiter on
// the transition path rather than a bare client.Publish call per event.
package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/acs-wifi/acsd/pkg/acs"
	"github.com/acs-wifi/acsd/pkg/logx"
)

// Client publishes ACS run telemetry over MQTT with network optimization.
type Client struct {
	client      MQTT.Client
	logger      *logx.Logger
	config      *Config
	connected   bool
	lastPublish time.Time

	// Network optimization: message batching
	messageQueue   []*QueuedMessage
	queueMutex     sync.Mutex
	queueSize      int
	maxQueueSize   int
	batchInterval  time.Duration
	lastBatchFlush time.Time

	// Network optimization: rate limiting
	publishRateLimiter *RateLimiter
}

// Config holds MQTT configuration.
type Config struct {
	Broker      string
	Port        int
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         int
	Retain      bool
	Enabled     bool
}

// DefaultConfig returns default MQTT configuration.
func DefaultConfig() *Config {
	return &Config{
		Broker:      "localhost",
		Port:        1883,
		ClientID:    "acsd",
		TopicPrefix: "acs",
		QoS:         1,
		Retain:      true,
		Enabled:     false,
	}
}

// NewClient creates a new MQTT client.
func NewClient(config *Config, logger *logx.Logger) *Client {
	return &Client{
		logger:        logger,
		config:        config,
		messageQueue:  make([]*QueuedMessage, 0, 100),
		maxQueueSize:  100,
		batchInterval: 5 * time.Second,
		publishRateLimiter: &RateLimiter{
			maxMessages: 10,
			windowSize:  1 * time.Second,
		},
	}
}

// Connect establishes connection to the MQTT broker.
func (c *Client) Connect() error {
	if !c.config.Enabled {
		c.logger.Debug("mqtt: client disabled")
		return nil
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port))
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = MQTT.NewClient(opts)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt: connect: %w", token.Error())
	}

	c.logger.Info("mqtt: connected", "broker", c.config.Broker, "port", c.config.Port)
	return nil
}

// Disconnect disconnects from the MQTT broker.
func (c *Client) Disconnect() error {
	if c.client != nil && c.connected {
		c.client.Disconnect(250)
		c.connected = false
		c.logger.Info("mqtt: disconnected")
	}
	return nil
}

func (c *Client) onConnect(MQTT.Client) {
	c.connected = true
	c.logger.Info("mqtt: connection established")
}

func (c *Client) onConnectionLost(_ MQTT.Client, err error) {
	c.connected = false
	c.logger.Error("mqtt: connection lost", "error", err.Error())
}

// DecisionEvent is published, retained, each time ACS completes with a
// winning channel (§7 StatusValid completion).
type DecisionEvent struct {
	RunID              string    `json:"run_id"`
	Interface          string    `json:"interface"`
	Channel            int       `json:"channel"`
	FreqMHz            int       `json:"freq_mhz"`
	InterferenceFactor float64   `json:"interference_factor"`
	SurveysConsidered   int      `json:"surveys_considered"`
	Timestamp          time.Time `json:"timestamp"`
}

// TransitionEvent is published, not retained, on every state transition,
// for operators tailing the live event stream.
type TransitionEvent struct {
	RunID     string    `json:"run_id"`
	Interface string    `json:"interface"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishDecision publishes a completed ACS decision to the retained
// "<prefix>/<iface>/decision" topic.
func (c *Client) PublishDecision(ev DecisionEvent) error {
	if !c.config.Enabled {
		return nil
	}
	topic := fmt.Sprintf("%s/%s/decision", c.config.TopicPrefix, ev.Interface)
	return c.publishRetained(topic, ev)
}

// PublishTransition publishes a state transition to the non-retained
// "<prefix>/<iface>/state" topic.
func (c *Client) PublishTransition(ev TransitionEvent) error {
	if !c.config.Enabled {
		return nil
	}
	topic := fmt.Sprintf("%s/%s/state", c.config.TopicPrefix, ev.Interface)
	return c.Publish(topic, ev)
}

func (c *Client) publishRetained(topic string, payload interface{}) error {
	if !c.connected {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mqtt: marshal: %w", err)
	}
	token := c.client.Publish(topic, byte(c.config.QoS), true, data)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, token.Error())
	}
	c.lastPublish = time.Now()
	return nil
}

// IsConnected returns whether the MQTT client is connected.
func (c *Client) IsConnected() bool {
	return c.connected && c.client != nil && c.client.IsConnected()
}

// GetLastPublish returns the timestamp of the last publish.
func (c *Client) GetLastPublish() time.Time {
	return c.lastPublish
}

// Publish publishes a message with network optimization (rate limiting
// and batching) applied.
func (c *Client) Publish(topic string, payload interface{}) error {
	if !c.config.Enabled {
		return nil
	}

	if !c.publishRateLimiter.Allow() {
		c.logger.Debug("mqtt: rate limit exceeded, queuing", "topic", topic)
		return c.queueMessage(topic, payload)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mqtt: marshal: %w", err)
	}
	return c.publishBatched(topic, data)
}

func (c *Client) publishBatched(topic string, payload []byte) error {
	c.queueMutex.Lock()
	defer c.queueMutex.Unlock()

	c.messageQueue = append(c.messageQueue, &QueuedMessage{
		Topic: topic, Payload: payload, QoS: c.config.QoS, Time: time.Now(),
	})
	c.queueSize++

	if c.queueSize >= c.maxQueueSize || time.Since(c.lastBatchFlush) >= c.batchInterval {
		return c.flushMessageQueue()
	}
	return nil
}

func (c *Client) queueMessage(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mqtt: marshal: %w", err)
	}

	c.queueMutex.Lock()
	defer c.queueMutex.Unlock()

	if c.queueSize < c.maxQueueSize {
		c.messageQueue = append(c.messageQueue, &QueuedMessage{
			Topic: topic, Payload: data, QoS: c.config.QoS, Time: time.Now(),
		})
		c.queueSize++
	} else {
		c.logger.Warn("mqtt: queue full, dropping message", "topic", topic)
	}
	return nil
}

func (c *Client) flushMessageQueue() error {
	if len(c.messageQueue) == 0 {
		return nil
	}
	for _, msg := range c.messageQueue {
		if err := c.publishDirect(msg.Topic, msg.Payload); err != nil {
			c.logger.Error("mqtt: failed to publish queued message", "topic", msg.Topic, "error", err)
		}
	}
	c.messageQueue = c.messageQueue[:0]
	c.queueSize = 0
	c.lastBatchFlush = time.Now()
	return nil
}

func (c *Client) publishDirect(topic string, payload []byte) error {
	if !c.connected {
		return fmt.Errorf("mqtt: not connected")
	}
	token := c.client.Publish(topic, byte(c.config.QoS), false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt: publish: %w", token.Error())
	}
	return nil
}

// Allow checks if a rate limit allows publishing.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastCheck) >= rl.windowSize {
		rl.messageCount = 0
		rl.lastCheck = now
	}
	if rl.messageCount < rl.maxMessages {
		rl.messageCount++
		return true
	}
	return false
}

// QueuedMessage represents a message waiting to be published.
type QueuedMessage struct {
	Topic   string
	Payload []byte
	QoS     int
	Time    time.Time
}

// RateLimiter implements rate limiting for MQTT publishing.
type RateLimiter struct {
	mu           sync.Mutex
	lastCheck    time.Time
	messageCount int
	maxMessages  int
	windowSize   time.Duration
}

// StateString is a small convenience so callers can build TransitionEvent
// without importing acs.State's String method under a different alias.
func StateString(s acs.State) string { return s.String() }
