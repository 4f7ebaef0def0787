package rpc

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ledgererrors "synthledger/core/errors"
	nativecommon "synthledger/native/common"
	"synthledger/native/ledger"
	"synthledger/native/oracle"
)

const errorDomain = "synthledger"

// toStatus maps ledger failures onto gRPC codes. Ledger errors carry their
// kind and decision values as an ErrorInfo detail.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if le, ok := ledgererrors.As(err); ok {
		st := status.New(categoryCode(le.Category()), le.Error())
		info := &errdetails.ErrorInfo{Reason: le.Kind(), Domain: errorDomain}
		if fields := le.Fields(); len(fields) > 0 {
			info.Metadata = make(map[string]string, len(fields))
			for _, f := range fields {
				info.Metadata[f.Name] = f.Value
			}
		}
		if detailed, derr := st.WithDetails(info); derr == nil {
			st = detailed
		}
		return st.Err()
	}
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrUnknownCollateral):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, ledger.ErrReentrantCall):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func categoryCode(category error) codes.Code {
	switch category {
	case ledgererrors.ErrValidation:
		return codes.InvalidArgument
	case ledgererrors.ErrAuthorization:
		return codes.PermissionDenied
	case ledgererrors.ErrNotFound:
		return codes.NotFound
	case ledgererrors.ErrSolvency:
		return codes.FailedPrecondition
	case ledgererrors.ErrCapacity:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// ErrorReason extracts the ledger error kind from a status returned by the
// service, or "" when the status carries none.
func ErrorReason(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == errorDomain {
			return info.GetReason()
		}
	}
	return ""
}
