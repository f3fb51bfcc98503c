// Package errors provides structured error handling with machine-readable codes.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Lookup errors
	CodeNotFound Code = "NOT_FOUND"

	// Authorization errors
	CodeUnauthorized Code = "UNAUTHORIZED"

	// Validation errors
	CodeInvalidAmount    Code = "INVALID_AMOUNT"
	CodeInvalidFrequency Code = "INVALID_FREQUENCY"
	CodeInvalidTimestamp Code = "INVALID_TIMESTAMP"
	CodeBatchTooLarge    Code = "BATCH_TOO_LARGE"

	// State errors
	CodeAlreadyPaid     Code = "ALREADY_PAID"
	CodeServicePaused   Code = "SERVICE_PAUSED"
	CodeOperationPaused Code = "OPERATION_PAUSED"

	// Arithmetic errors
	CodeArithmeticOverflow Code = "ARITHMETIC_OVERFLOW"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeInvalidAmount,
		CodeInvalidFrequency,
		CodeInvalidTimestamp,
		CodeBatchTooLarge:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeAlreadyPaid:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	// PermissionDenied - caller is not the owner or admin
	case CodeUnauthorized:
		return codes.PermissionDenied

	// Unavailable - paused entry points
	case CodeServicePaused,
		CodeOperationPaused:
		return codes.Unavailable

	// OutOfRange - aggregation overflow
	case CodeArithmeticOverflow:
		return codes.OutOfRange

	default:
		return codes.Internal
	}
}
