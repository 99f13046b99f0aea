// internal/service/progression/infrastructure/adapter/notifier_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"arcadia/internal/pkg/mq"
	"arcadia/internal/service/progression/domain"
)

// EventsTopic 是成长事件的统一 topic。
// 消息按用户 ID 做 Key，保证同一用户的事件有序——一次大额经验发放
// 连升多级时，升级提示必须按等级升序到达。
const EventsTopic = "progression-events"

// envelope 是事件在消息总线上的统一外壳。
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NotifierKafkaAdapter 实现了 port.EventPublisher 接口。
// 投递是 fire-and-forget 的至少一次语义，消费端把重复事件当幂等处理。
type NotifierKafkaAdapter struct {
	writer *kafka.Writer
}

// NewNotifierKafkaAdapter 创建一个新的事件发布适配器。
func NewNotifierKafkaAdapter(writer *kafka.Writer) *NotifierKafkaAdapter {
	return &NotifierKafkaAdapter{writer: writer}
}

// PublishLevelUp 发布一条升级事件。
func (a *NotifierKafkaAdapter) PublishLevelUp(ctx context.Context, event *domain.LevelUpEvent) error {
	return a.publish(ctx, domain.EventTypeLevelUp, event.UserID, event)
}

// PublishCouponPurchased 发布一条购券成功事件。
func (a *NotifierKafkaAdapter) PublishCouponPurchased(ctx context.Context, event *domain.CouponPurchasedEvent) error {
	return a.publish(ctx, domain.EventTypeCouponPurchased, event.UserID, event)
}

func (a *NotifierKafkaAdapter) publish(ctx context.Context, eventType, userID string, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	value, err := json.Marshal(envelope{Type: eventType, Payload: payloadBytes})
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	// mq.ProduceMessage 会把当前的追踪上下文注入消息头
	if err := mq.ProduceMessage(ctx, a.writer, []byte(userID), value); err != nil {
		return fmt.Errorf("failed to produce %s event: %w", eventType, err)
	}
	return nil
}

// DecodeEnvelope 解析消息外壳，供消费端使用。
func DecodeEnvelope(value []byte) (string, json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return "", nil, err
	}
	return env.Type, env.Payload, nil
}
