package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
	waitTimeout    = 5 * time.Second
)

var ErrNoTopic = errors.New("no topic configured")

type Topic struct {
	Topic  string
	Qos    byte
	Retain bool
}

type Topics struct {
	Pub       Topic
	Available Topic
}

type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string
	Topics   Topics
}

func (o Options) broker() string {
	return fmt.Sprintf("tcp://%s:%d", o.Host, o.Port)
}

// Client is one publisher's broker session. It implements publish.Transport.
type Client struct {
	client paho.Client
	logger *slog.Logger
	topics Topics

	mu   sync.Mutex
	subs map[string]paho.MessageHandler
}

func New(opts Options) *Client {
	redirectLogging()

	c := &Client{
		logger: slog.Default().With("module", "mqtt", slog.String("clientId", opts.ClientID)),
		topics: opts.Topics,
		subs:   make(map[string]paho.MessageHandler),
	}

	po := paho.NewClientOptions()
	po.AddBroker(opts.broker())
	po.SetClientID(opts.ClientID)
	po.SetUsername(opts.Username)
	po.SetPassword(opts.Password)
	po.SetAutoReconnect(true)
	po.SetConnectTimeout(waitTimeout)
	if a := opts.Topics.Available; a.Topic != "" {
		po.SetWill(a.Topic, payloadOffline, a.Qos, a.Retain)
	}
	po.OnConnect = func(client paho.Client) {
		c.logger.Info("MQTT connected")
		c.resubscribe()
	}
	po.OnConnectionLost = func(client paho.Client, err error) {
		c.logger.Warn("MQTT connection lost", slog.Any("error", err))
	}
	c.client = paho.NewClient(po)
	return c
}

func (c *Client) Connect() error {
	c.logger.Debug("connecting MQTT client")
	token := c.client.Connect()
	if !token.WaitTimeout(waitTimeout) {
		return fmt.Errorf("timeout connecting to broker")
	}
	return token.Error()
}

func (c *Client) Publish(payload []byte) error {
	return c.publish(c.topics.Pub, payload)
}

// Announce publishes the literal online or offline on the available topic.
// Without an available topic it does nothing.
func (c *Client) Announce(online bool) error {
	if c.topics.Available.Topic == "" {
		return nil
	}
	payload := payloadOffline
	if online {
		payload = payloadOnline
	}
	return c.publish(c.topics.Available, []byte(payload))
}

func (c *Client) publish(t Topic, payload []byte) error {
	if t.Topic == "" {
		return ErrNoTopic
	}
	token := c.client.Publish(t.Topic, t.Qos, t.Retain, payload)
	if !token.WaitTimeout(waitTimeout) {
		return fmt.Errorf("timeout publishing to %s", t.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("error publishing to %s: %w", t.Topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. Subscriptions made before Connect,
// or lost with the connection, are (re)made whenever the session connects.
func (c *Client) Subscribe(topic string, handler func(payload []byte)) error {
	h := func(_ paho.Client, msg paho.Message) {
		handler(msg.Payload())
	}
	c.mu.Lock()
	c.subs[topic] = h
	c.mu.Unlock()

	if !c.client.IsConnected() {
		return nil
	}
	return c.subscribe(topic, h)
}

func (c *Client) subscribe(topic string, h paho.MessageHandler) error {
	token := c.client.Subscribe(topic, 0, h)
	if !token.WaitTimeout(waitTimeout) {
		return fmt.Errorf("timeout subscribing to %s", topic)
	}
	return token.Error()
}

func (c *Client) resubscribe() {
	c.mu.Lock()
	subs := make(map[string]paho.MessageHandler, len(c.subs))
	for k, v := range c.subs {
		subs[k] = v
	}
	c.mu.Unlock()

	for topic, h := range subs {
		if err := c.subscribe(topic, h); err != nil {
			c.logger.Error("failed to subscribe", slog.String("topic", topic), slog.Any("error", err))
		} else {
			c.logger.Debug("subscribed", slog.String("topic", topic))
		}
	}
}

func (c *Client) Disconnect() {
	c.logger.Info("disconnecting MQTT client")
	c.mu.Lock()
	topics := make([]string, 0, len(c.subs))
	for k := range c.subs {
		topics = append(topics, k)
	}
	c.mu.Unlock()

	if len(topics) > 0 && c.client.IsConnected() {
		token := c.client.Unsubscribe(topics...)
		token.WaitTimeout(time.Second)
		if token.Error() != nil {
			c.logger.Error("error unsubscribing from topics", slog.Any("error", token.Error()))
		}
	}
	c.client.Disconnect(250)
}
