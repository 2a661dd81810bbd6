package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/crucial707/keykiosk/internal/middleware"
	"github.com/crucial707/keykiosk/internal/repo"
)

func TestUserHandler_CreateUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("CARD-1", "Ada", "Lovelace").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "CARD-1", "Ada", "Lovelace", true, now))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("kiosk:front", "register", "user", 1, "CARD-1 Ada Lovelace").
		WillReturnResult(sqlmock.NewResult(1, 1))

	h := &UserHandler{Repo: repo.NewUserRepo(db), AuditRepo: repo.NewAuditRepo(db)}
	req := requestWithChiURLParams(http.MethodPost, "/api/users",
		[]byte(`{"card_id":"CARD-1","first_name":"Ada","last_name":"Lovelace"}`), nil)
	req = req.WithContext(middleware.WithKioskID(req.Context(), "front"))
	rr := httptest.NewRecorder()
	h.CreateUser(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201 (%s)", rr.Code, rr.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserHandler_CreateUser_DuplicateCard(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(&pq.Error{Code: "23505"})

	h := &UserHandler{Repo: repo.NewUserRepo(db)}
	rr := httptest.NewRecorder()
	h.CreateUser(rr, requestWithChiURLParams(http.MethodPost, "/api/users",
		[]byte(`{"card_id":"CARD-1","first_name":"Ada","last_name":"Lovelace"}`), nil))

	if rr.Code != http.StatusConflict {
		t.Errorf("status: got %d, want 409", rr.Code)
	}
}

func TestUserHandler_ReplaceCardByCard(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`FROM users WHERE LOWER\(card_id\) = LOWER\(\$1\)`).
		WithArgs("OLD").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(4, "OLD", "Bo", "Lee", true, now))
	mock.ExpectQuery(`UPDATE users SET card_id`).
		WithArgs("NEW", 4).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(4, "NEW", "Bo", "Lee", true, now))

	h := &UserHandler{Repo: repo.NewUserRepo(db)}
	rr := httptest.NewRecorder()
	h.ReplaceCardByCard(rr, requestWithChiURLParams(http.MethodPost, "/api/users/replace_card",
		[]byte(`{"old_card_id":"OLD","new_card_id":"NEW"}`), nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	var out struct {
		CardID string `json:"card_id"`
	}
	json.NewDecoder(rr.Body).Decode(&out)
	if out.CardID != "NEW" {
		t.Errorf("card = %q", out.CardID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserHandler_ReplaceCard_Taken(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`UPDATE users SET card_id`).
		WithArgs("CARD-2", 1).
		WillReturnError(&pq.Error{Code: "23505"})

	h := &UserHandler{Repo: repo.NewUserRepo(db)}
	rr := httptest.NewRecorder()
	h.ReplaceCard(rr, requestWithChiURLParams(http.MethodPut, "/api/users/1/card",
		[]byte(`{"card_id":"CARD-2"}`), map[string]string{"id": "1"}))

	if rr.Code != http.StatusConflict {
		t.Errorf("status: got %d, want 409", rr.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserHandler_ReplaceCardByCard_UnknownCard(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`FROM users`).WithArgs("GHOST").WillReturnRows(sqlmock.NewRows(userCols))

	h := &UserHandler{Repo: repo.NewUserRepo(db)}
	rr := httptest.NewRecorder()
	h.ReplaceCardByCard(rr, requestWithChiURLParams(http.MethodPost, "/api/users/replace_card",
		[]byte(`{"old_card_id":"GHOST","new_card_id":"NEW"}`), nil))

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestUserHandler_UpdateUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`UPDATE users SET first_name`).
		WithArgs("Ada", "King", 1).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "CARD-1", "Ada", "King", true, now))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("kiosk:front", "update", "user", 1, "CARD-1 Ada King").
		WillReturnResult(sqlmock.NewResult(1, 1))

	h := &UserHandler{Repo: repo.NewUserRepo(db), AuditRepo: repo.NewAuditRepo(db)}
	req := requestWithChiURLParams(http.MethodPut, "/api/users/1",
		[]byte(`{"first_name":" Ada ","last_name":"King"}`), map[string]string{"id": "1"})
	req = req.WithContext(middleware.WithKioskID(req.Context(), "front"))
	rr := httptest.NewRecorder()
	h.UpdateUser(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.UpdateUser(rr, requestWithChiURLParams(http.MethodPut, "/api/users/1",
		[]byte(`{"first_name":"Ada"}`), map[string]string{"id": "1"}))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing last name: got %d, want 400", rr.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
