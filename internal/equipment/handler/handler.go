package handler

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/fekuna/omnipos-lending-service/internal/apperr"
	"github.com/fekuna/omnipos-lending-service/internal/auth"
	"github.com/fekuna/omnipos-lending-service/internal/equipment"
	"github.com/fekuna/omnipos-lending-service/internal/equipment/dto"
	"github.com/fekuna/omnipos-lending-service/pkg/i18n"
	"github.com/fekuna/omnipos-lending-service/pkg/logger"
	"github.com/fekuna/omnipos-lending-service/pkg/rpc"
)

const serviceName = "omnipos.lending.v1.EquipmentService"

type EquipmentServer interface {
	RegisterEquipment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetEquipment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AdjustStock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SetMaintenance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListMovements(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var _ EquipmentServer = (*EquipmentHandler)(nil)

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*EquipmentServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Method(serviceName, "RegisterEquipment", func(srv interface{}) rpc.StructHandler { return srv.(EquipmentServer).RegisterEquipment }),
		rpc.Method(serviceName, "GetEquipment", func(srv interface{}) rpc.StructHandler { return srv.(EquipmentServer).GetEquipment }),
		rpc.Method(serviceName, "AdjustStock", func(srv interface{}) rpc.StructHandler { return srv.(EquipmentServer).AdjustStock }),
		rpc.Method(serviceName, "SetMaintenance", func(srv interface{}) rpc.StructHandler { return srv.(EquipmentServer).SetMaintenance }),
		rpc.Method(serviceName, "ListMovements", func(srv interface{}) rpc.StructHandler { return srv.(EquipmentServer).ListMovements }),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "omnipos/lending/v1/equipment.proto",
}

func Register(s grpc.ServiceRegistrar, h EquipmentServer) {
	s.RegisterService(&ServiceDesc, h)
}

type EquipmentHandler struct {
	uc         equipment.UseCase
	translator *i18n.Translator
	logger     logger.ZapLogger
}

func NewEquipmentHandler(uc equipment.UseCase, translator *i18n.Translator, log logger.ZapLogger) *EquipmentHandler {
	return &EquipmentHandler{
		uc:         uc,
		translator: translator,
		logger:     log,
	}
}

func (h *EquipmentHandler) RegisterEquipment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.Require(ctx, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}

	itemValue := decimal.Zero
	if raw := rpc.String(req, "item_value"); raw != "" {
		itemValue, err = decimal.NewFromString(raw)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "item_value must be a decimal string")
		}
	}

	stock, err := rpc.Int(req, "stock")
	if err != nil {
		return nil, h.fail(ctx, "invalid equipment", apperr.Validation(err.Error(), "stock"))
	}

	e, err := h.uc.RegisterEquipment(ctx, &dto.RegisterEquipmentInput{
		ID:        rpc.String(req, "id"),
		Name:      rpc.String(req, "name"),
		Stock:     stock,
		ItemValue: itemValue,
		UserID:    actor.ID,
	})
	if err != nil {
		return nil, h.fail(ctx, "failed to register equipment", err)
	}
	return h.respond("equipment", e)
}

func (h *EquipmentHandler) GetEquipment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.Require(ctx, auth.RoleBorrower, auth.RoleStaff, auth.RoleAdmin); err != nil {
		return nil, err
	}

	e, err := h.uc.GetEquipment(ctx, rpc.String(req, "id"))
	if err != nil {
		return nil, h.fail(ctx, "failed to get equipment", err)
	}
	return h.respond("equipment", e)
}

func (h *EquipmentHandler) AdjustStock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.Require(ctx, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}

	change, err := rpc.Int(req, "quantity_change")
	if err != nil {
		return nil, h.fail(ctx, "invalid stock adjustment", apperr.Validation(err.Error(), "quantity_change"))
	}

	e, err := h.uc.AdjustStock(ctx, &dto.AdjustStockInput{
		EquipmentID:    rpc.String(req, "equipment_id"),
		QuantityChange: change,
		Reason:         rpc.String(req, "reason"),
		UserID:         actor.ID,
	})
	if err != nil {
		return nil, h.fail(ctx, "failed to adjust stock", err)
	}
	return h.respond("equipment", e)
}

func (h *EquipmentHandler) SetMaintenance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.Require(ctx, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}

	e, err := h.uc.SetMaintenance(ctx, &dto.SetMaintenanceInput{
		EquipmentID: rpc.String(req, "equipment_id"),
		Maintenance: rpc.Bool(req, "maintenance"),
		Reason:      rpc.String(req, "reason"),
		UserID:      actor.ID,
	})
	if err != nil {
		return nil, h.fail(ctx, "failed to toggle maintenance", err)
	}
	return h.respond("equipment", e)
}

func (h *EquipmentHandler) ListMovements(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.Require(ctx, auth.RoleStaff, auth.RoleAdmin); err != nil {
		return nil, err
	}

	page, pageSize, err := rpc.Page(req)
	if err != nil {
		return nil, h.fail(ctx, "invalid list request", apperr.Validation(err.Error(), "page"))
	}

	items, total, err := h.uc.ListMovements(ctx, &dto.MovementFilters{
		EquipmentID:  rpc.String(req, "equipment_id"),
		MovementType: rpc.String(req, "movement_type"),
		Page:         page,
		PageSize:     pageSize,
	})
	if err != nil {
		return nil, h.fail(ctx, "failed to list movements", err)
	}

	resp, err := rpc.ToStruct(map[string]interface{}{"movements": items, "total": total})
	if err != nil {
		h.logger.Error("failed to encode movements", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return resp, nil
}

func (h *EquipmentHandler) respond(key string, v interface{}) (*structpb.Struct, error) {
	resp, err := rpc.ToStruct(map[string]interface{}{key: v})
	if err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return resp, nil
}

func (h *EquipmentHandler) fail(ctx context.Context, msg string, err error) error {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.logger.Error(msg, zap.Error(err))
	} else {
		h.logger.Debug(msg, zap.Error(err))
	}
	return apperr.Status(h.translator, err, auth.GetLanguage(ctx))
}
