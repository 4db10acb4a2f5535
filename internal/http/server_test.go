package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"bollette/internal/services"
	"bollette/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "bills.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	srv := NewServer(":0", services.NewBillService(repo, nil))
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeRecord(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rr := doJSON(t, srv, http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
	if got := decodeRecord(t, rr)["status"]; got != "ok" {
		t.Errorf("status = %v", got)
	}
}

func TestAPICreateAndGetBill(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPost, "/api/bills",
		`{"date":"2024-01-15","gas_cost":"45.20","electricity_delivery_cost":30,"electricity_generation_cost":"25.00","electricity_on_peak_kwh":100,"electricity_off_peak_kwh":"200.5"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rr.Code, rr.Body.String())
	}
	created := decodeRecord(t, rr)
	if created["date"] != "2024-01-15" {
		t.Errorf("date = %v", created["date"])
	}
	if created["total_cost"] != 100.20 {
		t.Errorf("total_cost = %v, want 100.2", created["total_cost"])
	}
	if created["total_kwh"] != 300.5 {
		t.Errorf("total_kwh = %v, want 300.5", created["total_kwh"])
	}

	id := int64(created["id"].(float64))
	rr = doJSON(t, srv, http.MethodGet, "/api/bills/"+itoa(id), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	got := decodeRecord(t, rr)
	if got["gas_cost"] != 45.20 {
		t.Errorf("gas_cost = %v", got["gas_cost"])
	}
	if got["other_cost"] != 0.0 {
		t.Errorf("omitted cost should read back as 0, got %v", got["other_cost"])
	}
}

func TestAPIValidationErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing date", `{"gas_cost":"10"}`},
		{"malformed date", `{"date":"01/15/2024"}`},
		{"non-numeric cost", `{"date":"2024-01-15","gas_cost":"a lot"}`},
		{"negative cost", `{"date":"2024-01-15","other_cost":"-5"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, srv, http.MethodPost, "/api/bills", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
			}
			if decodeRecord(t, rr)["error"] == "" {
				t.Error("error body should carry a message")
			}
		})
	}
}

func TestAPIDuplicateDateConflict(t *testing.T) {
	srv := newTestServer(t)

	if rr := doJSON(t, srv, http.MethodPost, "/api/bills", `{"date":"2024-01-15"}`); rr.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", rr.Code)
	}
	rr := doJSON(t, srv, http.MethodPost, "/api/bills", `{"date":"2024-01-15"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", rr.Code)
	}
	if msg := decodeRecord(t, rr)["error"]; msg != "A bill with this date already exists" {
		t.Errorf("error message = %v", msg)
	}
}

func TestAPIListOrder(t *testing.T) {
	srv := newTestServer(t)

	for _, d := range []string{"2024-01-15", "2024-03-01", "2024-02-10"} {
		if rr := doJSON(t, srv, http.MethodPost, "/api/bills", `{"date":"`+d+`"}`); rr.Code != http.StatusCreated {
			t.Fatalf("create %s status = %d", d, rr.Code)
		}
	}

	rr := doJSON(t, srv, http.MethodGet, "/api/bills", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var records []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	want := []string{"2024-03-01", "2024-02-10", "2024-01-15"}
	for i, d := range want {
		if records[i]["date"] != d {
			t.Errorf("position %d: got %v, want %s", i, records[i]["date"], d)
		}
	}
}

func TestAPIUpdateBill(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPost, "/api/bills", `{"date":"2024-01-15","gas_cost":"10"}`)
	id := int64(decodeRecord(t, rr)["id"].(float64))

	rr = doJSON(t, srv, http.MethodPut, "/api/bills/"+itoa(id), `{"date":"2024-01-16","gas_cost":"12.50"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", rr.Code, rr.Body.String())
	}
	updated := decodeRecord(t, rr)
	if updated["date"] != "2024-01-16" || updated["gas_cost"] != 12.50 {
		t.Errorf("unexpected updated record: %v", updated)
	}

	if rr := doJSON(t, srv, http.MethodPut, "/api/bills/9999", `{"date":"2024-05-01"}`); rr.Code != http.StatusNotFound {
		t.Errorf("unknown id update status = %d, want 404", rr.Code)
	}
}

func TestAPIDeleteBill(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPost, "/api/bills", `{"date":"2024-01-15"}`)
	id := int64(decodeRecord(t, rr)["id"].(float64))

	rr = doJSON(t, srv, http.MethodDelete, "/api/bills/"+itoa(id), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if msg := decodeRecord(t, rr)["message"]; msg != "Bill deleted successfully" {
		t.Errorf("message = %v", msg)
	}

	if rr := doJSON(t, srv, http.MethodGet, "/api/bills/"+itoa(id), ""); rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rr.Code)
	}
	if rr := doJSON(t, srv, http.MethodDelete, "/api/bills/"+itoa(id), ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
}

func TestHTMXDeleteReturnsEmptyBody(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPost, "/api/bills", `{"date":"2024-01-15"}`)
	id := int64(decodeRecord(t, rr)["id"].(float64))

	req := httptest.NewRequest(http.MethodDelete, "/api/bills/"+itoa(id), nil)
	req.Header.Set("HX-Request", "true")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("htmx delete status = %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("htmx delete should return an empty body, got %q", rr.Body.String())
	}
}

func TestFormCreateRedirectsAndRendersErrors(t *testing.T) {
	srv := newTestServer(t)

	// Success redirects to the list page.
	form := "date=2024-01-15&gas_cost=45.20&electricity_on_peak_kwh=100"
	req := httptest.NewRequest(http.MethodPost, "/bills/create", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("create form status = %d, location = %q", rr.Code, rr.Header().Get("Location"))
	}

	// Missing date re-renders the form with a banner.
	req = httptest.NewRequest(http.MethodPost, "/bills/create", strings.NewReader("gas_cost=10"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing date status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Date is required") {
		t.Errorf("expected error banner in body")
	}

	// Duplicate date re-renders with the conflict message and keeps input.
	req = httptest.NewRequest(http.MethodPost, "/bills/create", strings.NewReader("date=2024-01-15&gas_cost=99.99"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate form status = %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "A bill with this date already exists") {
		t.Errorf("expected conflict banner in body")
	}
	if !strings.Contains(body, "99.99") {
		t.Errorf("re-rendered form should preserve submitted values")
	}
}

func TestPagesRender(t *testing.T) {
	srv := newTestServer(t)

	if rr := doJSON(t, srv, http.MethodPost, "/api/bills", `{"date":"2024-01-15","gas_cost":"45.20"}`); rr.Code != http.StatusCreated {
		t.Fatalf("seed bill: %d", rr.Code)
	}

	tests := []struct {
		path string
		want string
	}{
		{"/", "Utility Bills"},
		{"/", "$45.20"},
		{"/add", "Add Bill"},
		{"/edit/1", "Edit Bill"},
		{"/history", "Bill History"},
		{"/history?all=true", "Last 13 bills"},
	}
	for _, tt := range tests {
		rr := doJSON(t, srv, http.MethodGet, tt.path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d", tt.path, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), tt.want) {
			t.Errorf("%s body missing %q", tt.path, tt.want)
		}
	}

	if rr := doJSON(t, srv, http.MethodGet, "/edit/999", ""); rr.Code != http.StatusNotFound {
		t.Errorf("edit unknown id status = %d, want 404", rr.Code)
	}
}

func TestExportFormats(t *testing.T) {
	srv := newTestServer(t)

	if rr := doJSON(t, srv, http.MethodPost, "/api/bills", `{"date":"2024-01-15","gas_cost":"45.20"}`); rr.Code != http.StatusCreated {
		t.Fatalf("seed bill: %d", rr.Code)
	}

	tests := []struct {
		format      string
		contentType string
	}{
		{"csv", "text/csv"},
		{"xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"pdf", "application/pdf"},
	}
	for _, tt := range tests {
		rr := doJSON(t, srv, http.MethodGet, "/api/bills/export?format="+tt.format, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("export %s status = %d", tt.format, rr.Code)
		}
		if got := rr.Header().Get("Content-Type"); got != tt.contentType {
			t.Errorf("export %s content type = %q", tt.format, got)
		}
		if rr.Body.Len() == 0 {
			t.Errorf("export %s returned an empty body", tt.format)
		}
	}

	if rr := doJSON(t, srv, http.MethodGet, "/api/bills/export?format=docx", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("unsupported format status = %d, want 400", rr.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, http.MethodGet, "/api/bills", "")
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rr.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
