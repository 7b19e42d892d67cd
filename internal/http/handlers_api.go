package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"milkbook/internal/core"
	applog "milkbook/internal/log"
)

type viewResponse struct {
	core.View
	Summary core.Summary `json:"summary"`
}

func newViewResponse(v core.View) viewResponse {
	return viewResponse{View: v, Summary: v.Summary()}
}

type recordResponse struct {
	Success bool           `json:"success"`
	Record  core.DayRecord `json:"record"`
}

// handleGetRecord never fails: an unreadable day degrades to the empty view.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date := sanitizeInput(r.URL.Query().Get("date"))
	if date == "" {
		writeJSON(w, http.StatusOK, newViewResponse(core.EmptyView()))
		return
	}

	view, err := s.ledger.ComputeView(ctx, date)
	if err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Serving empty view",
			applog.FieldOperation, applog.OpView,
			applog.FieldDate, date,
			applog.FieldError, err)
		view = core.EmptyView()
	}
	writeJSON(w, http.StatusOK, newViewResponse(view))
}

func (s *Server) handleSaveRecord(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeJSONStrict(w, r, &req); err != nil {
		s.writeAPIError(w, r, applog.OpSave, err)
		return
	}

	items, err := req.lineItems()
	if err != nil {
		s.writeAPIError(w, r, applog.OpSave, err)
		return
	}
	var paid core.Money
	if req.TotalPaid != nil {
		paid = *req.TotalPaid
	}

	rec, err := s.ledger.SaveDay(r.Context(), req.Date, items, paid)
	if err != nil {
		s.writeAPIError(w, r, applog.OpSave, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{Success: true, Record: rec})
}

func (s *Server) handleApplyPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSONStrict(w, r, &req); err != nil {
		s.writeAPIError(w, r, applog.OpPay, err)
		return
	}
	if req.Amount == nil {
		s.writeAPIError(w, r, applog.OpPay, core.ErrInvalidAmount)
		return
	}

	rec, err := s.ledger.ApplyPayment(r.Context(), chi.URLParam(r, "date"), *req.Amount)
	if err != nil {
		s.writeAPIError(w, r, applog.OpPay, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{Success: true, Record: rec})
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.DeleteItem(r.Context(), chi.URLParam(r, "date"), chi.URLParam(r, "itemID"))
	if err != nil {
		s.writeAPIError(w, r, applog.OpDelete, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{Success: true, Record: rec})
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"products": s.catalog.Products()})
}

// writeAPIError maps engine errors onto status codes. Store failures get a
// fixed message; the cause is only logged.
func (s *Server) writeAPIError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	fields := applog.NewFields().WithOperation(op).WithError(err)
	logger := applog.FromContext(r.Context())

	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Ledger operation failed", fields.ToSlice()...)
		writeJSON(w, status, errorBody{Error: "Failed to save data"})
		return
	}
	logger.InfoContext(r.Context(), "Ledger request rejected", fields.ToSlice()...)
	writeJSON(w, status, errorBody{Error: err.Error()})
}
