package schema

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Message(t *testing.T) {
	cause := errors.New("connection refused")
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "msg and cause",
			err:  NewError("catalog.InsertFile", KindUpstreamUnavailable, "writing record", cause),
			want: "catalog.InsertFile: writing record: connection refused",
		},
		{
			name: "msg only",
			err:  NewError("vector.Search", KindNotFound, "collection missing", nil),
			want: "vector.Search: collection missing",
		},
		{
			name: "cause only",
			err:  NewError("graph.Query", KindUpstreamUnavailable, "", cause),
			want: "graph.Query: connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	err := NewError("sqlflow.Run", KindRetryExhausted, "3 retries", nil)
	wrapped := fmt.Errorf("pipeline: %w", err)

	if got := KindOf(wrapped); got != KindRetryExhausted {
		t.Errorf("KindOf = %q, want %q", got, KindRetryExhausted)
	}
	if got := KindOf(errors.New("plain")); got != KindPipelineFatal {
		t.Errorf("KindOf(plain) = %q, want %q", got, KindPipelineFatal)
	}
	if !IsKind(wrapped, KindRetryExhausted) {
		t.Error("IsKind = false, want true")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewError("op", KindValidation, "", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}
