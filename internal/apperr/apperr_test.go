package apperr

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

func TestServiceErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := New("clubs.create_club", "club_insert_failed", ErrInternal, cause)

	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected kind to match")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to match")
	}
	if CodeOf(err) != "clubs.create_club.club_insert_failed" {
		t.Fatalf("unexpected code %q", CodeOf(err))
	}
	if IsRejection(err) {
		t.Fatalf("internal failure must not be a rejection")
	}
}

func TestCatalogOutageIsNotARejection(t *testing.T) {
	err := New("catalog.fetch", "upstream_status", ErrCatalogUnavailable, errors.New("status 503"))
	if IsRejection(err) {
		t.Fatalf("upstream outage must not be a rejection")
	}
	if !IsUnavailable(err) {
		t.Fatalf("expected unavailable")
	}
	if IsUnavailable(Reject("catalog.fetch", "volume_not_found", ErrNotFound)) {
		t.Fatalf("not found is not an outage")
	}
	if IsUnavailable(Internal("clubs.create_club", "club_insert_failed", errors.New("disk full"))) {
		t.Fatalf("internal failure is not an outage")
	}
}

func TestRejectIsDistinguishableFromInternal(t *testing.T) {
	err := Reject("forum.add_message", "empty_message", ErrEmptyMessage)
	if !IsRejection(err) {
		t.Fatalf("expected rejection")
	}
	if KindOf(err) != ErrEmptyMessage {
		t.Fatalf("unexpected kind %v", KindOf(err))
	}
	if err.Error() != "forum.add_message.empty_message: empty message" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	wrapped := fmt.Errorf("handler: %w", err)
	if KindOf(wrapped) != ErrEmptyMessage {
		t.Fatalf("expected kind to survive wrapping")
	}
}

func TestKindOfUnknownErrorIsInternal(t *testing.T) {
	if KindOf(errors.New("boom")) != ErrInternal {
		t.Fatalf("expected unknown errors to be internal")
	}
	if KindOf(nil) != nil {
		t.Fatalf("expected nil kind for nil error")
	}
}

func TestIsDuplicateKey(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "gorm sentinel", err: gorm.ErrDuplicatedKey, want: true},
		{name: "sqlite message", err: errors.New("UNIQUE constraint failed: users.username"), want: true},
		{name: "postgres message", err: errors.New(`ERROR: duplicate key value violates unique constraint "idx_users_email"`), want: true},
		{name: "other", err: errors.New("connection refused"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tc := range cases {
		if got := IsDuplicateKey(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	if !IsForeignKeyViolation(gorm.ErrForeignKeyViolated) {
		t.Fatalf("expected gorm sentinel to match")
	}
	if !IsForeignKeyViolation(errors.New("constraint failed: FOREIGN KEY constraint failed (787)")) {
		t.Fatalf("expected sqlite message to match")
	}
	if IsForeignKeyViolation(errors.New("UNIQUE constraint failed: users.username")) {
		t.Fatalf("unique violation must not match")
	}
}
