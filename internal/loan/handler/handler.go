package handler

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/fekuna/omnipos-lending-service/internal/apperr"
	"github.com/fekuna/omnipos-lending-service/internal/auth"
	"github.com/fekuna/omnipos-lending-service/internal/loan"
	"github.com/fekuna/omnipos-lending-service/internal/loan/dto"
	"github.com/fekuna/omnipos-lending-service/internal/model"
	"github.com/fekuna/omnipos-lending-service/pkg/i18n"
	"github.com/fekuna/omnipos-lending-service/pkg/logger"
	"github.com/fekuna/omnipos-lending-service/pkg/rpc"
)

const serviceName = "omnipos.lending.v1.LendingService"

type LendingServer interface {
	RequestLoan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ApproveLoan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RejectLoan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ConfirmTake(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetLoan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListLoansForEquipment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var _ LendingServer = (*LoanHandler)(nil)

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*LendingServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Method(serviceName, "RequestLoan", func(srv interface{}) rpc.StructHandler { return srv.(LendingServer).RequestLoan }),
		rpc.Method(serviceName, "ApproveLoan", func(srv interface{}) rpc.StructHandler { return srv.(LendingServer).ApproveLoan }),
		rpc.Method(serviceName, "RejectLoan", func(srv interface{}) rpc.StructHandler { return srv.(LendingServer).RejectLoan }),
		rpc.Method(serviceName, "ConfirmTake", func(srv interface{}) rpc.StructHandler { return srv.(LendingServer).ConfirmTake }),
		rpc.Method(serviceName, "GetLoan", func(srv interface{}) rpc.StructHandler { return srv.(LendingServer).GetLoan }),
		rpc.Method(serviceName, "ListLoansForEquipment", func(srv interface{}) rpc.StructHandler { return srv.(LendingServer).ListLoansForEquipment }),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "omnipos/lending/v1/lending.proto",
}

func Register(s grpc.ServiceRegistrar, h LendingServer) {
	s.RegisterService(&ServiceDesc, h)
}

type LoanHandler struct {
	uc         loan.UseCase
	translator *i18n.Translator
	logger     logger.ZapLogger
}

func NewLoanHandler(uc loan.UseCase, translator *i18n.Translator, log logger.ZapLogger) *LoanHandler {
	return &LoanHandler{
		uc:         uc,
		translator: translator,
		logger:     log,
	}
}

func (h *LoanHandler) RequestLoan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.Require(ctx, auth.RoleBorrower)
	if err != nil {
		return nil, err
	}
	deadline, err := rpc.Date(req, "deadline")
	if err != nil {
		return nil, h.fail(ctx, "invalid loan request", apperr.Validation(err.Error(), "deadline"))
	}
	quantity, err := rpc.Int(req, "quantity")
	if err != nil {
		return nil, h.fail(ctx, "invalid loan request", apperr.Validation(err.Error(), "quantity"))
	}

	l, err := h.uc.RequestLoan(ctx, &dto.RequestLoanInput{
		Actor:       actor,
		EquipmentID: rpc.String(req, "equipment_id"),
		Quantity:    quantity,
		Deadline:    deadline,
		Purpose:     rpc.String(req, "purpose"),
	})
	if err != nil {
		return nil, h.fail(ctx, "failed to request loan", err)
	}
	return h.loanResponse(l)
}

func (h *LoanHandler) ApproveLoan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.Require(ctx, auth.RoleStaff, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}

	l, err := h.uc.ApproveLoan(ctx, &dto.ApproveLoanInput{Actor: actor, LoanID: rpc.String(req, "loan_id")})
	if err != nil {
		return nil, h.fail(ctx, "failed to approve loan", err)
	}
	return h.loanResponse(l)
}

func (h *LoanHandler) RejectLoan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.Require(ctx, auth.RoleStaff, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}

	l, err := h.uc.RejectLoan(ctx, &dto.RejectLoanInput{
		Actor:  actor,
		LoanID: rpc.String(req, "loan_id"),
		Reason: rpc.String(req, "reason"),
	})
	if err != nil {
		return nil, h.fail(ctx, "failed to reject loan", err)
	}
	return h.loanResponse(l)
}

func (h *LoanHandler) ConfirmTake(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.Require(ctx, auth.RoleStaff, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}

	l, err := h.uc.ConfirmTake(ctx, &dto.ConfirmTakeInput{Actor: actor, LoanID: rpc.String(req, "loan_id")})
	if err != nil {
		return nil, h.fail(ctx, "failed to confirm take", err)
	}
	return h.loanResponse(l)
}

func (h *LoanHandler) GetLoan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.Require(ctx, auth.RoleBorrower, auth.RoleStaff, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}

	l, err := h.uc.GetLoan(ctx, rpc.String(req, "id"))
	if err != nil {
		return nil, h.fail(ctx, "failed to get loan", err)
	}
	// Borrowers only see their own loans.
	if actor.Role == auth.RoleBorrower && l.BorrowerID != actor.ID {
		return nil, apperr.Status(h.translator, apperr.ErrLoanNotFound, auth.GetLanguage(ctx))
	}
	return h.loanResponse(l)
}

func (h *LoanHandler) ListLoansForEquipment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.Require(ctx, auth.RoleBorrower, auth.RoleStaff, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}

	page, pageSize, err := rpc.Page(req)
	if err != nil {
		return nil, h.fail(ctx, "invalid list request", apperr.Validation(err.Error(), "page"))
	}

	filters := &dto.LoanFilters{
		EquipmentID: rpc.String(req, "equipment_id"),
		BorrowerID:  rpc.String(req, "borrower_id"),
		Status:      model.LoanStatus(rpc.String(req, "status")),
		Page:        page,
		PageSize:    pageSize,
	}
	if actor.Role == auth.RoleBorrower {
		filters.BorrowerID = actor.ID
	}

	loans, total, err := h.uc.ListLoansForEquipment(ctx, filters)
	if err != nil {
		return nil, h.fail(ctx, "failed to list loans", err)
	}

	resp, err := rpc.ToStruct(map[string]interface{}{
		"loans": loans,
		"total": total,
	})
	if err != nil {
		h.logger.Error("failed to encode loans", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return resp, nil
}

func (h *LoanHandler) loanResponse(l *model.Loan) (*structpb.Struct, error) {
	resp, err := rpc.ToStruct(map[string]interface{}{"loan": l})
	if err != nil {
		h.logger.Error("failed to encode loan", zap.String("loan_id", l.ID), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return resp, nil
}

// fail logs err and converts it to a localized status.
func (h *LoanHandler) fail(ctx context.Context, msg string, err error) error {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.logger.Error(msg, zap.Error(err))
	} else {
		h.logger.Debug(msg, zap.Error(err))
	}
	return apperr.Status(h.translator, err, auth.GetLanguage(ctx))
}
