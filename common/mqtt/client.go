package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"residence-data/common/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Client 仅发布的 MQTT 客户端（床位状态通知）
type Client struct {
	client         mqtt.Client
	qos            byte
	publishTimeout time.Duration
}

func NewClient(cfg *config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(orDefault(cfg.ConnectTimeout, 10*time.Second))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.String("broker", cfg.Broker), zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(orDefault(cfg.ConnectTimeout, 10*time.Second)) {
		return nil, fmt.Errorf("connect to MQTT broker %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	return &Client{
		client:         client,
		qos:            cfg.QoS,
		publishTimeout: orDefault(cfg.PublishTimeout, 5*time.Second),
	}, nil
}

// PublishJSON 以配置的 QoS 发布，不保留消息
func (c *Client) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}
	token := c.client.Publish(topic, c.qos, false, payload)
	if !token.WaitTimeout(c.publishTimeout) {
		return fmt.Errorf("publish to topic %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Close 断开连接，最多等待 250ms 让在途消息发出
func (c *Client) Close() {
	c.client.Disconnect(250)
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
