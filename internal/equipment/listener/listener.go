package listener

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fekuna/omnipos-lending-service/internal/equipment"
	"github.com/fekuna/omnipos-lending-service/internal/equipment/dto"
	"github.com/fekuna/omnipos-lending-service/pkg/broker"
	"github.com/fekuna/omnipos-lending-service/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	EventEquipmentRegistered         = "EquipmentRegistered"
	EventEquipmentRestocked          = "EquipmentRestocked"
	EventEquipmentMaintenanceToggled = "EquipmentMaintenanceToggled"
)

// EquipmentListener applies inventory-admin events to the ledger.
type EquipmentListener struct {
	consumer broker.Consumer
	uc       equipment.UseCase
	logger   logger.ZapLogger
	backoff  time.Duration
}

func NewEquipmentListener(consumer broker.Consumer, uc equipment.UseCase, logger logger.ZapLogger) *EquipmentListener {
	return &EquipmentListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
		backoff:  time.Second,
	}
}

func (l *EquipmentListener) Start(ctx context.Context) {
	l.logger.Info("Starting equipment admin listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping equipment admin listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(l.backoff)
				continue
			}
			if err := l.Handle(ctx, msg.Value); err != nil {
				l.logger.Error("Failed to apply equipment event",
					zap.String("key", string(msg.Key)),
					zap.Error(err))
			}
		}
	}
}

type AdminEvent struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	Payload   AdminPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

type AdminPayload struct {
	EquipmentID    string          `json:"equipment_id"`
	Name           string          `json:"name"`
	Stock          int             `json:"stock"`
	ItemValue      decimal.Decimal `json:"item_value"`
	QuantityChange int             `json:"quantity_change"`
	Maintenance    bool            `json:"maintenance"`
	Reason         string          `json:"reason"`
	UserID         string          `json:"user_id"`
}

// Handle applies one event. Unknown event types are ignored.
func (l *EquipmentListener) Handle(ctx context.Context, value []byte) error {
	var event AdminEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	p := event.Payload

	var err error
	switch event.EventType {
	case EventEquipmentRegistered:
		_, err = l.uc.RegisterEquipment(ctx, &dto.RegisterEquipmentInput{
			ID:        p.EquipmentID,
			Name:      p.Name,
			Stock:     p.Stock,
			ItemValue: p.ItemValue,
			UserID:    p.UserID,
		})
	case EventEquipmentRestocked:
		_, err = l.uc.AdjustStock(ctx, &dto.AdjustStockInput{
			EquipmentID:    p.EquipmentID,
			QuantityChange: p.QuantityChange,
			Reason:         p.Reason,
			UserID:         p.UserID,
		})
	case EventEquipmentMaintenanceToggled:
		_, err = l.uc.SetMaintenance(ctx, &dto.SetMaintenanceInput{
			EquipmentID: p.EquipmentID,
			Maintenance: p.Maintenance,
			Reason:      p.Reason,
			UserID:      p.UserID,
		})
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", event.EventType, p.EquipmentID, err)
	}

	l.logger.Info("Applied equipment event",
		zap.String("event_type", event.EventType),
		zap.String("equipment_id", p.EquipmentID))
	return nil
}
