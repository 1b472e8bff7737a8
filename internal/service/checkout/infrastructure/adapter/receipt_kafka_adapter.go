package adapter

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"convenience/internal/service/checkout/domain"
)

// ReceiptTopic 收据事件的默认 topic
const ReceiptTopic = "checkout-receipts"

// MessageWriter 是 *kafka.Writer 的最小接口
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReceiptKafkaAdapter 实现了 port.ReceiptPublisher 接口
type ReceiptKafkaAdapter struct {
	writer MessageWriter
}

// NewReceiptKafkaAdapter 创建一个新的收据生产者适配器
func NewReceiptKafkaAdapter(writer MessageWriter) *ReceiptKafkaAdapter {
	return &ReceiptKafkaAdapter{writer: writer}
}

// NewReceiptKafkaWriter 按 broker 列表创建 writer，同一张收据的消息落在同一分区
func NewReceiptKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = ReceiptTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

// PublishReceipt 序列化收据并写入 Kafka，同时注入追踪上下文
func (a *ReceiptKafkaAdapter) PublishReceipt(ctx context.Context, receipt *domain.Receipt) error {
	payload, err := json.Marshal(receipt)
	if err != nil {
		return errors.Wrap(err, "marshal receipt")
	}

	msg := kafka.Message{Key: []byte(receipt.ID), Value: payload}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	if err := a.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write receipt %s", receipt.ID)
	}
	return nil
}

// Close 关闭底层的Kafka writer。
func (a *ReceiptKafkaAdapter) Close() error {
	return a.writer.Close()
}

// headerCarrier 把 kafka 消息头适配为 propagation.TextMapCarrier
type headerCarrier struct {
	msg *kafka.Message
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}
