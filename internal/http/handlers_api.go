package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bollette/internal/export"
	"bollette/internal/services"
)

// writeServiceError translates the service error taxonomy into an HTTP
// status and a human-readable JSON body.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "Bill not found")
	case errors.Is(err, services.ErrDuplicateDate):
		writeJSONError(w, http.StatusConflict, "A bill with this date already exists")
	default:
		slog.ErrorContext(r.Context(), "Storage failure", "error", err, "url", r.URL.Path)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	records, err := s.bills.ListBills(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []services.BillRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid bill id")
		return
	}
	record, err := s.bills.GetBill(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Malformed request body")
		return
	}

	record, err := s.bills.CreateBill(r.Context(), parser.BillInput())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Bill created",
		"id", record.ID,
		"date", record.Date,
		"total_cents", record.TotalCost.Cents)
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid bill id")
		return
	}

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Malformed request body")
		return
	}

	record, err := s.bills.UpdateBill(r.Context(), id, parser.BillInput())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Bill updated", "id", record.ID, "date", record.Date)
	writeJSON(w, http.StatusOK, record)
}

// handleDeleteBill serves both variants: HTMX row removal gets an empty 200
// so the target element is swapped out, API clients get a JSON confirmation.
func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid bill id")
		return
	}

	if err := s.bills.DeleteBill(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Bill deleted", "id", id)

	if r.Header.Get("HX-Request") != "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Bill deleted successfully"})
}

func (s *Server) handleExportBills(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	records, err := s.bills.ListBills(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var (
		data        []byte
		contentType string
		ext         string
	)
	switch format {
	case "csv":
		data, err = export.BuildBillsCSV(records)
		contentType, ext = "text/csv", "csv"
	case "xlsx":
		data, err = export.BuildBillsXLSX(records)
		contentType, ext = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"
	case "pdf":
		data, err = export.BuildBillsPDF(records)
		contentType, ext = "application/pdf", "pdf"
	default:
		writeJSONError(w, http.StatusBadRequest, "Unsupported format, expected csv, xlsx or pdf")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Export failed", "format", format, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to build export")
		return
	}

	filename := fmt.Sprintf("bills-%s.%s", time.Now().UTC().Format("2006-01-02"), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
