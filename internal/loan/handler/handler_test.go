package handler_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/fekuna/omnipos-lending-service/internal/apperr"
	"github.com/fekuna/omnipos-lending-service/internal/audit"
	"github.com/fekuna/omnipos-lending-service/internal/auth"
	"github.com/fekuna/omnipos-lending-service/internal/loan/handler"
	"github.com/fekuna/omnipos-lending-service/internal/loan/usecase"
	"github.com/fekuna/omnipos-lending-service/internal/memstore"
	"github.com/fekuna/omnipos-lending-service/internal/model"
	"github.com/fekuna/omnipos-lending-service/pkg/i18n"
	"github.com/fekuna/omnipos-lending-service/pkg/logger"
	"github.com/fekuna/omnipos-lending-service/pkg/middleware"
)

var now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newHandler(t *testing.T, stock int) *handler.LoanHandler {
	t.Helper()
	store := memstore.New()
	require.NoError(t, store.Equipment().Create(context.Background(), &model.Equipment{
		BaseModel: model.BaseModel{ID: "eq-1"},
		Name:      "Tripod",
		Stock:     stock,
		Status:    model.StatusFor(stock, model.EquipmentAvailable),
		ItemValue: decimal.NewFromInt(250000),
	}))

	tr := i18n.New()
	require.NoError(t, apperr.RegisterMessages(tr))
	uc := usecase.NewLoanUseCase(store, store.Loans(), store.Equipment(), &audit.Recorder{}, logger.NewNop(),
		usecase.WithClock(func() time.Time { return now }))
	return handler.NewLoanHandler(uc, tr, logger.NewNop())
}

func as(id string, role auth.Role) context.Context {
	return auth.WithActor(context.Background(), auth.Actor{ID: id, Role: role})
}

func request(t *testing.T, fields map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func loanField(resp *structpb.Struct, key string) *structpb.Value {
	return resp.GetFields()["loan"].GetStructValue().GetFields()[key]
}

func requestLoan(t *testing.T, h *handler.LoanHandler, borrowerID string, qty int) string {
	t.Helper()
	resp, err := h.RequestLoan(as(borrowerID, auth.RoleBorrower), request(t, map[string]interface{}{
		"equipment_id": "eq-1",
		"quantity":     qty,
		"deadline":     "2026-05-08",
	}))
	require.NoError(t, err)
	return loanField(resp, "id").GetStringValue()
}

func Test_RequestApproveTake(t *testing.T) {
	// arrange
	h := newHandler(t, 2)
	id := requestLoan(t, h, "b-1", 1)

	// act
	approved, err := h.ApproveLoan(as("s-1", auth.RoleStaff), request(t, map[string]interface{}{"loan_id": id}))
	require.NoError(t, err)
	taken, err := h.ConfirmTake(as("s-1", auth.RoleStaff), request(t, map[string]interface{}{"loan_id": id}))
	require.NoError(t, err)

	// assert
	assert.Equal(t, "APPROVED", loanField(approved, "status").GetStringValue())
	assert.Equal(t, "s-1", loanField(approved, "approved_by").GetStringValue())
	assert.Equal(t, "BORROWED", loanField(taken, "status").GetStringValue())
	assert.Equal(t, float64(1), loanField(taken, "quantity").GetNumberValue())
}

func Test_RoleGating(t *testing.T) {
	h := newHandler(t, 2)
	id := requestLoan(t, h, "b-1", 1)

	_, err := h.RequestLoan(as("s-1", auth.RoleStaff), request(t, map[string]interface{}{"equipment_id": "eq-1", "quantity": 1, "deadline": "2026-05-08"}))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = h.ApproveLoan(as("b-1", auth.RoleBorrower), request(t, map[string]interface{}{"loan_id": id}))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = h.ApproveLoan(context.Background(), request(t, map[string]interface{}{"loan_id": id}))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func Test_ErrorsAreLocalizedStatuses(t *testing.T) {
	// arrange
	h := newHandler(t, 3)
	first := requestLoan(t, h, "b-1", 2)
	second := requestLoan(t, h, "b-2", 2)
	_, err := h.ApproveLoan(as("s-1", auth.RoleStaff), request(t, map[string]interface{}{"loan_id": first}))
	require.NoError(t, err)

	ctx := context.WithValue(as("s-1", auth.RoleStaff), middleware.LanguageKey, "id")

	// act
	_, err = h.ApproveLoan(ctx, request(t, map[string]interface{}{"loan_id": second}))

	// assert
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.ResourceExhausted, st.Code())
	assert.Equal(t, "Stok tidak mencukupi. Sisa 1 unit yang masih bisa disetujui.", st.Message())

	_, err = h.RejectLoan(as("s-1", auth.RoleStaff), request(t, map[string]interface{}{"loan_id": second, "reason": "x"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.ConfirmTake(as("s-1", auth.RoleStaff), request(t, map[string]interface{}{"loan_id": second}))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = h.RequestLoan(as("b-1", auth.RoleBorrower), request(t, map[string]interface{}{"equipment_id": "eq-1", "quantity": 1, "deadline": "next week"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func Test_BorrowersSeeOnlyTheirLoans(t *testing.T) {
	h := newHandler(t, 5)
	mine := requestLoan(t, h, "b-1", 1)
	requestLoan(t, h, "b-2", 1)

	_, err := h.GetLoan(as("b-2", auth.RoleBorrower), request(t, map[string]interface{}{"id": mine}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	got, err := h.GetLoan(as("b-1", auth.RoleBorrower), request(t, map[string]interface{}{"id": mine}))
	require.NoError(t, err)
	assert.Equal(t, "PENDING", loanField(got, "status").GetStringValue())

	list, err := h.ListLoansForEquipment(as("b-1", auth.RoleBorrower), request(t, map[string]interface{}{"equipment_id": "eq-1"}))
	require.NoError(t, err)
	assert.Equal(t, float64(1), list.GetFields()["total"].GetNumberValue())

	all, err := h.ListLoansForEquipment(as("s-1", auth.RoleStaff), request(t, map[string]interface{}{"equipment_id": "eq-1"}))
	require.NoError(t, err)
	assert.Equal(t, float64(2), all.GetFields()["total"].GetNumberValue())
	assert.Len(t, all.GetFields()["loans"].GetListValue().GetValues(), 2)
}

func Test_RequestLoan_RejectsFractionalQuantity(t *testing.T) {
	h := newHandler(t, 5)

	for _, qty := range []float64{1.5, 1.9, 0.5} {
		_, err := h.RequestLoan(as("b-1", auth.RoleBorrower), request(t, map[string]interface{}{
			"equipment_id": "eq-1",
			"quantity":     qty,
			"deadline":     "2026-05-08",
		}))
		assert.Equal(t, codes.InvalidArgument, status.Code(err), "quantity %v", qty)
	}

	list, err := h.ListLoansForEquipment(as("s-1", auth.RoleStaff), request(t, map[string]interface{}{"equipment_id": "eq-1"}))
	require.NoError(t, err)
	assert.Zero(t, list.GetFields()["total"].GetNumberValue())

	_, err = h.ListLoansForEquipment(as("s-1", auth.RoleStaff), request(t, map[string]interface{}{"equipment_id": "eq-1", "page": 1.5}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func Test_RequestLoan_DeadlineKeepsTheBorrowersDate(t *testing.T) {
	h := newHandler(t, 5)

	resp, err := h.RequestLoan(as("b-1", auth.RoleBorrower), request(t, map[string]interface{}{
		"equipment_id": "eq-1",
		"quantity":     1,
		"deadline":     "2026-05-08T01:00:00+07:00",
	}))

	require.NoError(t, err)
	assert.Equal(t, "2026-05-08T00:00:00Z", loanField(resp, "deadline").GetStringValue())
}
