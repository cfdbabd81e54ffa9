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
	"github.com/fekuna/omnipos-lending-service/internal/model"
	"github.com/fekuna/omnipos-lending-service/internal/returns"
	"github.com/fekuna/omnipos-lending-service/internal/returns/dto"
	"github.com/fekuna/omnipos-lending-service/pkg/i18n"
	"github.com/fekuna/omnipos-lending-service/pkg/logger"
	"github.com/fekuna/omnipos-lending-service/pkg/rpc"
)

const serviceName = "omnipos.lending.v1.ReturnService"

type ReturnServer interface {
	SubmitReturn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ConfirmReturn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetReturn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var _ ReturnServer = (*ReturnHandler)(nil)

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ReturnServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Method(serviceName, "SubmitReturn", func(srv interface{}) rpc.StructHandler { return srv.(ReturnServer).SubmitReturn }),
		rpc.Method(serviceName, "ConfirmReturn", func(srv interface{}) rpc.StructHandler { return srv.(ReturnServer).ConfirmReturn }),
		rpc.Method(serviceName, "GetReturn", func(srv interface{}) rpc.StructHandler { return srv.(ReturnServer).GetReturn }),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "omnipos/lending/v1/return.proto",
}

func Register(s grpc.ServiceRegistrar, h ReturnServer) {
	s.RegisterService(&ServiceDesc, h)
}

type ReturnHandler struct {
	uc         returns.UseCase
	translator *i18n.Translator
	logger     logger.ZapLogger
}

func NewReturnHandler(uc returns.UseCase, translator *i18n.Translator, log logger.ZapLogger) *ReturnHandler {
	return &ReturnHandler{
		uc:         uc,
		translator: translator,
		logger:     log,
	}
}

func (h *ReturnHandler) SubmitReturn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.Require(ctx, auth.RoleBorrower)
	if err != nil {
		return nil, err
	}

	input := &dto.SubmitReturnInput{
		Actor:      actor,
		LoanID:     rpc.String(req, "loan_id"),
		Condition:  model.ReturnCondition(rpc.String(req, "condition")),
		Notes:      rpc.String(req, "notes"),
		ProofPhoto: rpc.String(req, "proof_photo"),
	}
	if hint := rpc.String(req, "client_fee"); hint != "" {
		fee, err := decimal.NewFromString(hint)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "client_fee must be a decimal string")
		}
		input.ClientFeeHint = &fee
	}

	ret, err := h.uc.SubmitReturn(ctx, input)
	if err != nil {
		return nil, h.fail(ctx, "failed to submit return", err)
	}
	return h.returnResponse(ret)
}

func (h *ReturnHandler) ConfirmReturn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.Require(ctx, auth.RoleStaff, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}

	ret, err := h.uc.ConfirmReturn(ctx, &dto.ConfirmReturnInput{
		Actor:            actor,
		ReturnID:         rpc.String(req, "return_id"),
		PaymentConfirmed: rpc.Bool(req, "payment_confirmed"),
	})
	if err != nil {
		return nil, h.fail(ctx, "failed to confirm return", err)
	}
	return h.returnResponse(ret)
}

// GetReturn looks a return up by "id" or, failing that, by "loan_id".
func (h *ReturnHandler) GetReturn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.Require(ctx, auth.RoleBorrower, auth.RoleStaff, auth.RoleAdmin); err != nil {
		return nil, err
	}

	var (
		ret *model.Return
		err error
	)
	if id := rpc.String(req, "id"); id != "" {
		ret, err = h.uc.GetReturn(ctx, id)
	} else {
		ret, err = h.uc.GetReturnByLoan(ctx, rpc.String(req, "loan_id"))
	}
	if err != nil {
		return nil, h.fail(ctx, "failed to get return", err)
	}
	return h.returnResponse(ret)
}

func (h *ReturnHandler) returnResponse(ret *model.Return) (*structpb.Struct, error) {
	resp, err := rpc.ToStruct(map[string]interface{}{"return": ret})
	if err != nil {
		h.logger.Error("failed to encode return", zap.String("return_id", ret.ID), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return resp, nil
}

func (h *ReturnHandler) fail(ctx context.Context, msg string, err error) error {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.logger.Error(msg, zap.Error(err))
	} else {
		h.logger.Debug(msg, zap.Error(err))
	}
	return apperr.Status(h.translator, err, auth.GetLanguage(ctx))
}
