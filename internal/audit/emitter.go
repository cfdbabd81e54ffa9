package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fekuna/omnipos-lending-service/internal/auth"
	"github.com/fekuna/omnipos-lending-service/internal/model"
	"github.com/fekuna/omnipos-lending-service/pkg/broker"
	"github.com/fekuna/omnipos-lending-service/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	EntityLoan   = "loan"
	EntityReturn = "return"

	ActionRequest       = "request"
	ActionApprove       = "approve"
	ActionReject        = "reject"
	ActionCascadeReject = "cascade_reject"
	ActionConfirmTake   = "confirm_take"
	ActionSubmitReturn  = "submit_return"
	ActionConfirmReturn = "confirm_return"
)

// Emitter delivers audit events to the notification/audit collaborator.
type Emitter interface {
	Emit(ctx context.Context, events ...model.AuditEvent) error
}

func NewEvent(actor auth.Actor, action, entityType, entityID, before, after string, at time.Time) model.AuditEvent {
	return model.AuditEvent{
		ID:         uuid.New().String(),
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Before:     before,
		After:      after,
		OccurredAt: at,
	}
}

type KafkaEmitter struct {
	producer broker.Producer
}

func NewKafkaEmitter(producer broker.Producer) *KafkaEmitter {
	return &KafkaEmitter{producer: producer}
}

func (e *KafkaEmitter) Emit(ctx context.Context, events ...model.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal audit event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.EntityID),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.Action)},
			},
		})
	}
	return e.producer.WriteMessages(ctx, msgs...)
}

// LogEmitter writes audit events to the service log.
type LogEmitter struct {
	logger logger.ZapLogger
}

func NewLogEmitter(log logger.ZapLogger) *LogEmitter {
	return &LogEmitter{logger: log}
}

func (e *LogEmitter) Emit(_ context.Context, events ...model.AuditEvent) error {
	for _, ev := range events {
		e.logger.Info("audit",
			zap.String("action", ev.Action),
			zap.String("entity_type", ev.EntityType),
			zap.String("entity_id", ev.EntityID),
			zap.String("actor_id", ev.ActorID),
			zap.String("before", ev.Before),
			zap.String("after", ev.After),
			zap.String("reason", ev.Reason),
		)
	}
	return nil
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func (r *Recorder) Emit(_ context.Context, events ...model.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *Recorder) Events() []model.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AuditEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Actions returns the recorded actions for entityID in emission order.
func (r *Recorder) Actions(entityID string) []string {
	var out []string
	for _, ev := range r.Events() {
		if ev.EntityID == entityID {
			out = append(out, ev.Action)
		}
	}
	return out
}
