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
	"github.com/fekuna/omnipos-lending-service/internal/memstore"
	"github.com/fekuna/omnipos-lending-service/internal/model"
	"github.com/fekuna/omnipos-lending-service/internal/returns"
	"github.com/fekuna/omnipos-lending-service/internal/returns/handler"
	"github.com/fekuna/omnipos-lending-service/internal/returns/usecase"
	"github.com/fekuna/omnipos-lending-service/pkg/i18n"
	"github.com/fekuna/omnipos-lending-service/pkg/logger"
)

var deadline = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func newHandler(t *testing.T) *handler.ReturnHandler {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Equipment().Create(ctx, &model.Equipment{
		BaseModel: model.BaseModel{ID: "eq-1"},
		Stock:     0,
		Status:    model.EquipmentUnavailable,
		ItemValue: decimal.NewFromInt(1000000),
	}))
	require.NoError(t, store.Loans().Create(ctx, &model.Loan{
		BaseModel:   model.BaseModel{ID: "l-1"},
		EquipmentID: "eq-1",
		BorrowerID:  "b-1",
		Quantity:    1,
		Deadline:    deadline,
		Status:      model.LoanBorrowed,
	}))

	tr := i18n.New()
	require.NoError(t, apperr.RegisterMessages(tr))
	calc := returns.NewCalculator(returns.Policy{LateFeePerDay: decimal.NewFromInt(50000)})
	uc := usecase.NewReturnUseCase(store, store.Returns(), store.Loans(), store.Equipment(), calc,
		&audit.Recorder{}, logger.NewNop(), usecase.WithClock(func() time.Time { return deadline.AddDate(0, 0, 3) }))
	return handler.NewReturnHandler(uc, tr, logger.NewNop())
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

func returnField(resp *structpb.Struct, key string) *structpb.Value {
	return resp.GetFields()["return"].GetStructValue().GetFields()[key]
}

func Test_SubmitAndConfirmReturn(t *testing.T) {
	// arrange
	h := newHandler(t)

	// act
	submitted, err := h.SubmitReturn(as("b-1", auth.RoleBorrower), request(t, map[string]interface{}{
		"loan_id":    "l-1",
		"condition":  "MODERATE_DAMAGE",
		"client_fee": "0",
	}))
	require.NoError(t, err)
	returnID := returnField(submitted, "id").GetStringValue()

	_, unpaidErr := h.ConfirmReturn(as("s-1", auth.RoleStaff), request(t, map[string]interface{}{"return_id": returnID}))
	confirmed, err := h.ConfirmReturn(as("s-1", auth.RoleStaff), request(t, map[string]interface{}{
		"return_id":         returnID,
		"payment_confirmed": true,
	}))
	require.NoError(t, err)

	// assert
	assert.Equal(t, "AWAITING_CONFIRMATION", returnField(submitted, "status").GetStringValue())
	assert.Equal(t, "550000", returnField(submitted, "total_fee").GetStringValue())
	assert.Equal(t, codes.FailedPrecondition, status.Code(unpaidErr))
	assert.Equal(t, "CONFIRMED", returnField(confirmed, "status").GetStringValue())
	assert.Equal(t, "550000", returnField(confirmed, "amount_paid").GetStringValue())

	byLoan, err := h.GetReturn(as("s-1", auth.RoleStaff), request(t, map[string]interface{}{"loan_id": "l-1"}))
	require.NoError(t, err)
	assert.Equal(t, returnID, returnField(byLoan, "id").GetStringValue())
}

func Test_SubmitReturn_Errors(t *testing.T) {
	h := newHandler(t)

	_, err := h.SubmitReturn(as("s-1", auth.RoleStaff), request(t, map[string]interface{}{"loan_id": "l-1", "condition": "GOOD"}))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = h.SubmitReturn(as("b-1", auth.RoleBorrower), request(t, map[string]interface{}{"loan_id": "l-1", "condition": "GOOD", "client_fee": "free"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.SubmitReturn(as("b-1", auth.RoleBorrower), request(t, map[string]interface{}{"loan_id": "l-1", "condition": "GOOD"}))
	require.NoError(t, err)
	_, err = h.SubmitReturn(as("b-1", auth.RoleBorrower), request(t, map[string]interface{}{"loan_id": "l-1", "condition": "GOOD"}))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = h.GetReturn(as("s-1", auth.RoleStaff), request(t, map[string]interface{}{"id": "missing"}))
	assert.Equal(t, codes.NotFound, status.Code(err))
}
