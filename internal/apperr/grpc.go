package apperr

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fekuna/omnipos-lending-service/pkg/i18n"
)

// Code maps an error kind to the gRPC status code clients see.
func Code(k Kind) codes.Code {
	switch k {
	case KindValidation:
		return codes.InvalidArgument
	case KindStateConflict, KindPaymentNotConfirmed:
		return codes.FailedPrecondition
	case KindInsufficientStock:
		return codes.ResourceExhausted
	case KindNotFound:
		return codes.NotFound
	case KindAborted:
		return codes.Aborted
	default:
		return codes.Internal
	}
}

// Status converts err into a gRPC status error with a localized message.
func Status(t *i18n.Translator, err error, langs ...string) error {
	return status.Error(Code(KindOf(err)), Localize(t, err, langs...))
}
