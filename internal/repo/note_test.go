package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

var noteCols = []string{"asset_id", "note", "updated_by", "updated_at"}

func TestNoteRepo_SetUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO asset_notes .* ON CONFLICT \(asset_id\) DO UPDATE`).
		WithArgs(7, "low fuel", "kiosk:front").
		WillReturnRows(sqlmock.NewRows(noteCols).AddRow(7, "low fuel", "kiosk:front", time.Now()))

	repo := NewNoteRepo(db)
	note, err := repo.Set(context.Background(), 7, "low fuel", "kiosk:front")
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if note.AssetID != 7 || note.Note != "low fuel" {
		t.Errorf("unexpected note: %+v", note)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestNoteRepo_SetUnknownAsset(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO asset_notes`).
		WillReturnError(&pq.Error{Code: "23503"})

	repo := NewNoteRepo(db)
	if _, err := repo.Set(context.Background(), 99, "flat tyre", "admin"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNoteRepo_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM asset_notes WHERE asset_id = \$1`).
		WithArgs(7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM asset_notes`).
		WithArgs(7).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewNoteRepo(db)
	if err := repo.Delete(context.Background(), 7); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(context.Background(), 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestNoteRepo_ByAsset(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`FROM asset_notes`).
		WillReturnRows(sqlmock.NewRows(noteCols).
			AddRow(1, "low fuel", "admin", time.Now()).
			AddRow(4, "keys sticky", "kiosk:front", time.Now()))

	notes, err := NewNoteRepo(db).ByAsset(context.Background())
	if err != nil {
		t.Fatalf("ByAsset: %v", err)
	}
	if len(notes) != 2 || notes[1] != "low fuel" || notes[4] != "keys sticky" {
		t.Errorf("unexpected notes: %v", notes)
	}
}
