package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/slr-reduction/core"
	"github.com/signalsfoundry/slr-reduction/internal/archive"
	"github.com/signalsfoundry/slr-reduction/internal/cpf"
	"github.com/signalsfoundry/slr-reduction/internal/crd"
	"github.com/signalsfoundry/slr-reduction/internal/fixedcol"
	"github.com/signalsfoundry/slr-reduction/internal/sinex"
	"github.com/signalsfoundry/slr-reduction/kb"
	"github.com/signalsfoundry/slr-reduction/timectrl"
)

// ErrInvalidRequest marks a request document the service cannot decode.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps reduction errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var fieldErr *fixedcol.FieldParseError
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.As(err, &fieldErr),
		errors.Is(err, timectrl.ErrMalformedEpoch),
		errors.Is(err, sinex.ErrSectionNotFound),
		errors.Is(err, crd.ErrHeaderNotFound),
		errors.Is(err, crd.ErrUnterminatedBlock),
		errors.Is(err, crd.ErrRecordOutsideBlock),
		errors.Is(err, cpf.ErrValidation),
		errors.Is(err, core.ErrInvalidTLE):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, kb.ErrStationNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, kb.ErrNotLoaded),
		errors.Is(err, core.ErrNoEccentricityForEpoch):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, archive.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
