package shared

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsSQLiteConflictError(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"SQLITE_BUSY: database busy": true,
		"database is locked (5)":     true,
		"no such table: kv":          false,
	}
	for msg, want := range cases {
		if got := IsSQLiteConflictError(errors.New(msg)); got != want {
			t.Errorf("IsSQLiteConflictError(%q) = %v, want %v", msg, got, want)
		}
	}
	if IsSQLiteConflictError(nil) {
		t.Error("nil error is not a conflict")
	}
}

func TestRetryOnConflict(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryOnConflict(context.Background(), "op", 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third call, got calls=%d err=%v", calls, err)
	}

	calls = 0
	boom := errors.New("constraint failed")
	err = RetryOnConflict(context.Background(), "op", 3, time.Millisecond, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("non-conflict errors must not retry: calls=%d err=%v", calls, err)
	}
}
