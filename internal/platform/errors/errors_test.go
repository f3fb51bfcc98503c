package errors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := New(CodeAlreadyPaid, "obligation 3 is already paid")
	target := New(CodeAlreadyPaid, "different message")

	if !errors.Is(err, target) {
		t.Fatal("expected errors with the same code to match")
	}
	if errors.Is(err, New(CodeNotFound, "missing")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("sqlite: disk I/O error")
	err := Wrap(CodeUnknown, "pay obligation", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
	if err.Error() != "pay obligation" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code Code
		want codes.Code
	}{
		{CodeNotFound, codes.NotFound},
		{CodeUnauthorized, codes.PermissionDenied},
		{CodeInvalidAmount, codes.InvalidArgument},
		{CodeInvalidFrequency, codes.InvalidArgument},
		{CodeInvalidTimestamp, codes.InvalidArgument},
		{CodeBatchTooLarge, codes.InvalidArgument},
		{CodeAlreadyPaid, codes.FailedPrecondition},
		{CodeServicePaused, codes.Unavailable},
		{CodeOperationPaused, codes.Unavailable},
		{CodeArithmeticOverflow, codes.OutOfRange},
		{CodeUnknown, codes.Internal},
	}
	for _, tc := range cases {
		if got := tc.code.GRPCCode(); got != tc.want {
			t.Errorf("GRPCCode(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestToGRPCStatusAttachesErrorInfo(t *testing.T) {
	t.Parallel()

	err := WithMetadata(CodeUnauthorized, "caller is not the owner", map[string]string{
		"obligation_id": "7",
	})

	st, ok := status.FromError(err.ToGRPCStatus())
	if !ok {
		t.Fatal("expected a gRPC status error")
	}
	if st.Code() != codes.PermissionDenied {
		t.Fatalf("status code = %v, want %v", st.Code(), codes.PermissionDenied)
	}

	var info *errdetails.ErrorInfo
	for _, detail := range st.Details() {
		if d, ok := detail.(*errdetails.ErrorInfo); ok {
			info = d
		}
	}
	if info == nil {
		t.Fatal("expected ErrorInfo detail")
	}
	if info.Reason != string(CodeUnauthorized) {
		t.Fatalf("reason = %q, want %q", info.Reason, CodeUnauthorized)
	}
	if info.Domain != Domain {
		t.Fatalf("domain = %q, want %q", info.Domain, Domain)
	}
	if info.Metadata["obligation_id"] != "7" {
		t.Fatalf("metadata = %v, want obligation_id=7", info.Metadata)
	}
}
