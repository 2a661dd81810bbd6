package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"

	"github.com/crucial707/keykiosk/internal/repo"
)

var (
	assetCols = []string{"id", "code", "name", "category", "location", "active", "registered_at"}
	userCols  = []string{"id", "card_id", "first_name", "last_name", "active", "registered_at"}
	now       = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

// requestWithChiURLParams returns a request with chi route context and URL params set.
func requestWithChiURLParams(method, path string, body []byte, params map[string]string) *http.Request {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, path, bytes.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestAssetHandler_CreateAsset(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO assets`).
		WithArgs("FOB-9", "Truck 9", "Vehicle", "Main").
		WillReturnRows(sqlmock.NewRows(assetCols).AddRow(9, "FOB-9", "Truck 9", "Vehicle", "Main", true, now))
	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnResult(sqlmock.NewResult(1, 1))

	h := &AssetHandler{Repo: repo.NewAssetRepo(db), AuditRepo: repo.NewAuditRepo(db)}
	body := []byte(`{"code":" FOB-9 ","name":"Truck 9"}`)
	rr := httptest.NewRecorder()
	h.CreateAsset(rr, requestWithChiURLParams(http.MethodPost, "/api/assets", body, nil))

	if rr.Code != http.StatusCreated {
		t.Fatalf("CreateAsset status: got %d, want 201 (%s)", rr.Code, rr.Body.String())
	}
	var out struct {
		Code     string `json:"code"`
		Location string `json:"location"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Code != "FOB-9" || out.Location != "Main" {
		t.Errorf("unexpected asset: %+v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestAssetHandler_CreateAsset_ValidationFailed(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := &AssetHandler{Repo: repo.NewAssetRepo(db)}
	rr := httptest.NewRecorder()
	h.CreateAsset(rr, requestWithChiURLParams(http.MethodPost, "/api/assets", []byte(`{"code":"FOB-9"}`), nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
	var out struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	json.NewDecoder(rr.Body).Decode(&out)
	if out.Error != "validation failed" || out.Fields["name"] != "required" {
		t.Errorf("unexpected body: %+v", out)
	}
}

func TestAssetHandler_ReplaceCode_Conflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`UPDATE assets SET code`).
		WithArgs("FOB-2", 1).
		WillReturnError(&pq.Error{Code: "23505"})

	h := &AssetHandler{Repo: repo.NewAssetRepo(db)}
	rr := httptest.NewRecorder()
	req := requestWithChiURLParams(http.MethodPut, "/api/assets/1/code", []byte(`{"code":"FOB-2"}`), map[string]string{"id": "1"})
	h.ReplaceCode(rr, req)

	if rr.Code != http.StatusConflict {
		t.Errorf("status: got %d, want 409", rr.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestAssetHandler_SetActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`UPDATE assets SET active`).
		WithArgs(false, 3).
		WillReturnRows(sqlmock.NewRows(assetCols).AddRow(3, "FOB-3", "Truck 3", "Vehicle", "Main", false, now))

	h := &AssetHandler{Repo: repo.NewAssetRepo(db)}
	rr := httptest.NewRecorder()
	h.SetActive(rr, requestWithChiURLParams(http.MethodPost, "/api/assets/3/active", []byte(`{"active":false}`), map[string]string{"id": "3"}))

	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.SetActive(rr, requestWithChiURLParams(http.MethodPost, "/api/assets/x/active", []byte(`{"active":false}`), map[string]string{"id": "x"}))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid id: got %d, want 400", rr.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestAssetHandler_SetActive_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`UPDATE assets SET active`).
		WithArgs(true, 99).
		WillReturnRows(sqlmock.NewRows(assetCols))

	h := &AssetHandler{Repo: repo.NewAssetRepo(db)}
	rr := httptest.NewRecorder()
	h.SetActive(rr, requestWithChiURLParams(http.MethodPost, "/api/assets/99/active", []byte(`{"active":true}`), map[string]string{"id": "99"}))

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestAssetHandler_UpdateAsset(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`UPDATE assets SET name = \$1, category = \$2, location = \$3`).
		WithArgs("Truck 3", "Equipment", "Yard", 3).
		WillReturnRows(sqlmock.NewRows(assetCols).AddRow(3, "FOB-3", "Truck 3", "Equipment", "Yard", true, now))
	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`UPDATE assets SET name`).
		WithArgs("Truck 4", "Vehicle", "Main", 99).
		WillReturnRows(sqlmock.NewRows(assetCols))

	h := &AssetHandler{Repo: repo.NewAssetRepo(db), AuditRepo: repo.NewAuditRepo(db)}
	rr := httptest.NewRecorder()
	h.UpdateAsset(rr, requestWithChiURLParams(http.MethodPut, "/api/assets/3",
		[]byte(`{"name":"Truck 3","category":"Equipment","location":" Yard "}`), map[string]string{"id": "3"}))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	var out struct {
		Code     string `json:"code"`
		Location string `json:"location"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Code != "FOB-3" || out.Location != "Yard" {
		t.Errorf("unexpected asset: %+v", out)
	}

	rr = httptest.NewRecorder()
	h.UpdateAsset(rr, requestWithChiURLParams(http.MethodPut, "/api/assets/99",
		[]byte(`{"name":"Truck 4"}`), map[string]string{"id": "99"}))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown asset: got %d, want 404", rr.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
