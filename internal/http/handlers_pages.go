package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"bollette/internal/core"
	"bollette/internal/services"
)

// billFormData is everything bill_form.html needs: the raw field values (so
// a rejected submission re-renders with the user's input intact), the error
// banner and the editing mode.
type billFormData struct {
	IsEditing   bool
	BillID      int64
	DefaultDate string
	Form        core.BillInput
	Error       string
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution failed", "error", err, "template", name)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleBillsList(w http.ResponseWriter, r *http.Request) {
	records, err := s.bills.ListBills(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List bills failed", "error", err)
		http.Error(w, "Failed to load bills", http.StatusInternalServerError)
		return
	}
	s.render(w, r, "bills_list.html", struct {
		Bills []services.BillRecord
	}{Bills: records})
}

func (s *Server) handleAddForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "bill_form.html", billFormData{
		DefaultDate: time.Now().Format("2006-01-02"),
	})
}

func (s *Server) handleEditForm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid bill id", http.StatusBadRequest)
		return
	}
	record, err := s.bills.GetBill(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			http.Error(w, "Bill not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(r.Context(), "Get bill failed", "id", id, "error", err)
		http.Error(w, "Failed to load bill", http.StatusInternalServerError)
		return
	}
	s.render(w, r, "bill_form.html", billFormData{
		IsEditing: true,
		BillID:    record.ID,
		Form:      inputFromBill(record.Bill),
	})
}

func (s *Server) handleCreateBillForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	in := billInputFromForm(r)

	if _, err := s.bills.CreateBill(r.Context(), in); err != nil {
		status, msg := formErrorResponse(err)
		if status == http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "Create bill failed", "error", err)
		}
		w.WriteHeader(status)
		s.render(w, r, "bill_form.html", billFormData{
			DefaultDate: time.Now().Format("2006-01-02"),
			Form:        in,
			Error:       msg,
		})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleUpdateBillForm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid bill id", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	in := billInputFromForm(r)

	if _, err := s.bills.UpdateBill(r.Context(), id, in); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			http.Error(w, "Bill not found", http.StatusNotFound)
			return
		}
		status, msg := formErrorResponse(err)
		if status == http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "Update bill failed", "id", id, "error", err)
		}
		w.WriteHeader(status)
		s.render(w, r, "bill_form.html", billFormData{
			IsEditing: true,
			BillID:    id,
			Form:      in,
			Error:     msg,
		})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleHistory renders the usage/cost history page, oldest to newest. The
// default window is the last 13 bills; ?all=true widens it to everything.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	showAll := r.URL.Query().Get("all") == "true"

	var (
		records []services.BillRecord
		err     error
	)
	if showAll {
		records, err = s.bills.ListBills(r.Context())
	} else {
		records, err = s.bills.ListRecentBills(r.Context(), 13)
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "History load failed", "error", err)
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}

	// The list comes newest first; the charts read left to right in time.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	series := historySeries(records)
	s.render(w, r, "history.html", struct {
		Bills   []services.BillRecord
		ShowAll bool
		Series  template.JS
	}{Bills: records, ShowAll: showAll, Series: series})
}

// historySeries builds the chart payload: parallel arrays of dates, usage
// and cost values, already JSON-encoded for the inline script.
func historySeries(records []services.BillRecord) template.JS {
	type payload struct {
		Dates        []string  `json:"dates"`
		OnPeak       []float64 `json:"on_peak"`
		OffPeak      []float64 `json:"off_peak"`
		SuperOffPeak []float64 `json:"super_off_peak"`
		GasCost      []float64 `json:"gas_cost"`
		ElDelivery   []float64 `json:"el_delivery_cost"`
		ElGeneration []float64 `json:"el_generation_cost"`
		OtherCost    []float64 `json:"other_cost"`
	}
	p := payload{
		Dates:        make([]string, 0, len(records)),
		OnPeak:       make([]float64, 0, len(records)),
		OffPeak:      make([]float64, 0, len(records)),
		SuperOffPeak: make([]float64, 0, len(records)),
		GasCost:      make([]float64, 0, len(records)),
		ElDelivery:   make([]float64, 0, len(records)),
		ElGeneration: make([]float64, 0, len(records)),
		OtherCost:    make([]float64, 0, len(records)),
	}
	for _, r := range records {
		p.Dates = append(p.Dates, r.Date.String())
		p.OnPeak = append(p.OnPeak, r.ElectricityOnPeakKWh)
		p.OffPeak = append(p.OffPeak, r.ElectricityOffPeakKWh)
		p.SuperOffPeak = append(p.SuperOffPeak, r.ElectricitySuperOffPeakKWh)
		p.GasCost = append(p.GasCost, r.GasCost.Units())
		p.ElDelivery = append(p.ElDelivery, r.ElectricityDeliveryCost.Units())
		p.ElGeneration = append(p.ElGeneration, r.ElectricityGenerationCost.Units())
		p.OtherCost = append(p.OtherCost, r.OtherCost.Units())
	}

	encoded, err := json.Marshal(p)
	if err != nil {
		slog.Error("Failed to encode history series", "error", err)
		return template.JS("{}")
	}
	return template.JS(encoded)
}

// billInputFromForm collects the raw form values for the normalizer.
func billInputFromForm(r *http.Request) core.BillInput {
	get := func(key string) string { return sanitizeInput(r.Form.Get(key)) }
	return core.BillInput{
		Date:                       get("date"),
		GasCost:                    get("gas_cost"),
		ElectricityDeliveryCost:    get("electricity_delivery_cost"),
		ElectricityGenerationCost:  get("electricity_generation_cost"),
		OtherCost:                  get("other_cost"),
		GasTherms:                  get("gas_therms"),
		ElectricityOnPeakKWh:       get("electricity_on_peak_kwh"),
		ElectricityOffPeakKWh:      get("electricity_off_peak_kwh"),
		ElectricitySuperOffPeakKWh: get("electricity_super_off_peak_kwh"),
	}
}

// inputFromBill converts a stored bill back into raw field values so the
// edit form can prefill its inputs.
func inputFromBill(b core.Bill) core.BillInput {
	cost := func(m core.Money) string {
		if m.Cents == 0 {
			return ""
		}
		return fmt.Sprintf("%.2f", m.Units())
	}
	qty := func(v float64) string {
		if v == 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return core.BillInput{
		Date:                       b.Date.String(),
		GasCost:                    cost(b.GasCost),
		ElectricityDeliveryCost:    cost(b.ElectricityDeliveryCost),
		ElectricityGenerationCost:  cost(b.ElectricityGenerationCost),
		OtherCost:                  cost(b.OtherCost),
		GasTherms:                  qty(b.GasTherms),
		ElectricityOnPeakKWh:       qty(b.ElectricityOnPeakKWh),
		ElectricityOffPeakKWh:      qty(b.ElectricityOffPeakKWh),
		ElectricitySuperOffPeakKWh: qty(b.ElectricitySuperOffPeakKWh),
	}
}

// formErrorResponse picks the banner message and status for a failed form
// submission.
func formErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrMissingDate):
		return http.StatusUnprocessableEntity, "Date is required"
	case errors.Is(err, services.ErrValidation):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, services.ErrDuplicateDate):
		return http.StatusConflict, "A bill with this date already exists"
	default:
		return http.StatusInternalServerError, "Failed to save bill"
	}
}
