package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: ErrDuplicate},
		{name: "foreign key", err: fmt.Errorf("delete category: %w", &pgconn.PgError{Code: "23503"}), want: ErrReferenced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("classify() = %v, want %v", got, tt.want)
			}
		})
	}

	other := errors.New("boom")
	if got := classify(other); got != other {
		t.Fatalf("expected unrelated error to pass through, got %v", got)
	}
	if classify(nil) != nil {
		t.Fatal("expected nil to stay nil")
	}
}
