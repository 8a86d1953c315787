// Package notification 执行事件通知出口
package notification

import (
	"context"
	"time"

	"github.com/wyfcoding/tradeexecution/pkg/mq"
)

const defaultNotificationTopic = "trade.execution.notifications"

// Event 投递到消息队列的通知载荷
type Event struct {
	UserID    string      `json:"user_id"`
	EventType string      `json:"event_type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// KafkaPublisher 将通知写入 Kafka，由下游推送服务消费
type KafkaPublisher struct {
	producer *mq.KafkaProducer
	topic    string
}

// NewKafkaPublisher 创建 Kafka 通知发布器，topic 为空时使用默认主题
func NewKafkaPublisher(producer *mq.KafkaProducer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = defaultNotificationTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

// SendNotification 按 userID 分区写入通知事件
func (p *KafkaPublisher) SendNotification(ctx context.Context, userID, eventType string, payload interface{}) error {
	event := &Event{
		UserID:    userID,
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
	return p.producer.SendMessage(ctx, p.topic, userID, event)
}
