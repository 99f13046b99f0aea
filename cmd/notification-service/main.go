// cmd/notification-service/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"arcadia/internal/pkg/bootstrap"
	"arcadia/internal/pkg/logger"
	"arcadia/internal/pkg/mq"
	"arcadia/internal/pkg/tracing"
	"arcadia/internal/service/progression/domain"
	"arcadia/internal/service/progression/infrastructure/adapter"
)

const (
	serviceName     = "notification-service"
	consumerGroupID = "notification-group"
)

var tracer = otel.Tracer(serviceName)

// notification-service 是成长事件的消费端：把升级、购券事件渲染成
// 用户可读的通知文案。纯后台消费者，不开 HTTP 端口。
func main() {
	logger.Init(serviceName)
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Logger().Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, adapter.EventsTopic, consumerGroupID)
	defer reader.Close()

	logger.Logger().Info().
		Str("topic", adapter.EventsTopic).
		Msg("notification service started as a kafka consumer")

	for {
		msg, err := reader.ReadMessage(context.Background())
		if err != nil {
			logger.Logger().Error().Err(err).Msg("could not read message")
			continue
		}
		go processEvent(msg)
	}
}

// processEvent 处理从 Kafka 收到的单条成长事件。
// 投递是至少一次语义，通知重发无害，这里不做去重。
func processEvent(msg kafka.Message) {
	// 从消息头恢复上游（progression-service）的追踪上下文
	ctx := mq.ExtractTraceContext(context.Background(), msg.Headers)

	spanOpts := []trace.SpanStartOption{
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	}
	ctx, span := tracer.Start(ctx, "notification-service.ProcessEvent", spanOpts...)
	defer span.End()

	eventType, payload, err := adapter.DecodeEnvelope(msg.Value)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to decode event envelope")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(attribute.String("event.type", eventType))

	var userID, message string
	switch eventType {
	case domain.EventTypeLevelUp:
		var event domain.LevelUpEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal level-up event")
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		userID = event.UserID
		message = fmt.Sprintf("Поздравляем! Вы достигли уровня %d и получили %d монет!",
			event.NewLevel, event.CoinsEarned)

	case domain.EventTypeCouponPurchased:
		var event domain.CouponPurchasedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal coupon-purchased event")
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		userID = event.UserID
		message = fmt.Sprintf("Купон «%s» (-%d%%) куплен. Остаток: %d монет.",
			event.CouponName, event.DiscountPercent, event.RemainingCoins)

	default:
		logger.Ctx(ctx).Warn().Str("event_type", eventType).Msg("unknown event type, skipping")
		span.AddEvent("unknown event type skipped")
		return
	}

	span.SetAttributes(attribute.String("user.id", userID))

	// 实际的推送投递由 push-gateway 负责，这里只负责渲染和记录
	logger.Ctx(ctx).Info().
		Str("user_id", userID).
		Str("event_type", eventType).
		Str("message", message).
		Msg("notification rendered")
	span.AddEvent("notification rendered")
}
