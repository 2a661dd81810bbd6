package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(nil)
	if err := s.Add("bad", "not a cron spec", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error")
	}
	if err := s.Add("off", "", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("empty spec should disable, got %v", err)
	}
}

func TestRunExecutesJobsUntilCancelled(t *testing.T) {
	s := New(nil)
	var runs atomic.Int32
	if err := s.Add("tick", "@every 1s", func(context.Context) error {
		runs.Add(1)
		return errors.New("failures are logged, not fatal")
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runs.Load() < 1 {
		t.Errorf("job ran %d times", runs.Load())
	}
}

func TestVacuum(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("VACUUM").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := Vacuum(db)(context.Background()); err != nil {
		t.Fatalf("Vacuum: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
