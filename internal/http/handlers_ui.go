package http

import (
	"net/http"
	"net/url"

	"milkbook/internal/catalog"
	"milkbook/internal/core"
	applog "milkbook/internal/log"
)

type itemRow struct {
	ID       string
	Name     string
	Quantity core.Quantity
	Rate     core.Money
	Total    core.Money
}

type dayPage struct {
	Date     string
	Prev     string
	Next     string
	Today    string
	IsToday  bool
	Stored   bool
	Items    []itemRow
	Summary  core.Summary
	Products []catalog.Product
	Error    string
}

// handleDayPage renders one day. Without a date parameter, or with an
// invalid one, it shows today.
func (s *Server) handleDayPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)
	if s.templates == nil {
		logger.ErrorContext(ctx, "Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	today := core.DateOf(s.now())
	page := dayPage{Today: today.String(), Products: s.catalog.Products()}

	date := today
	if raw := sanitizeInput(r.URL.Query().Get("date")); raw != "" {
		d, err := core.ParseDate(raw)
		if err != nil {
			page.Error = "Invalid date " + raw + ", showing today"
		} else {
			date = d
		}
	}

	view, err := s.ledger.ComputeView(ctx, date.String())
	if err != nil {
		logger.ErrorContext(ctx, "Day view failed",
			applog.FieldOperation, applog.OpRender,
			applog.FieldDate, date.String(),
			applog.FieldError, err)
		page.Error = "Could not load this day, please retry"
		view = core.EmptyView()
	}

	page.Date = date.String()
	page.Prev = date.Previous().String()
	page.Next = date.Next().String()
	page.IsToday = date.Equal(today.Time)
	page.Stored = view.Stored
	page.Summary = view.Summary()
	for _, it := range view.Items {
		name := it.ProductType
		if p, ok := s.catalog.Lookup(it.ProductType); ok {
			name = p.Name
		}
		page.Items = append(page.Items, itemRow{ID: it.ID, Name: name, Quantity: it.Quantity, Rate: it.Rate, Total: it.Total})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "day.html", page); err != nil {
		logger.ErrorContext(ctx, "Template execution failed", applog.FieldError, err, "template", "day.html")
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}

// handleAddItemForm appends one item and saves the day, which also
// refreshes its carry forward.
func (s *Server) handleAddItemForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "Invalid request format").Write(w)
		return
	}
	date := sanitizeInput(r.Form.Get("date"))

	item, err := parseItemForm(r.Form)
	if err != nil {
		s.respondFormError(w, r, applog.OpSave, err)
		return
	}
	view, err := s.ledger.ComputeView(r.Context(), date)
	if err != nil {
		s.respondFormError(w, r, applog.OpSave, err)
		return
	}
	items := append(view.Items, item)
	if _, err := s.ledger.SaveDay(r.Context(), date, items, view.TotalPaid); err != nil {
		s.respondFormError(w, r, applog.OpSave, err)
		return
	}
	s.respondFormSuccess(w, r, date)
}

func (s *Server) handlePaymentForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "Invalid request format").Write(w)
		return
	}
	date := sanitizeInput(r.Form.Get("date"))

	amount, err := core.ParseMoney(r.Form.Get("amount"))
	if err != nil {
		s.respondFormError(w, r, applog.OpPay, err)
		return
	}
	if _, err := s.ledger.ApplyPayment(r.Context(), date, amount); err != nil {
		s.respondFormError(w, r, applog.OpPay, err)
		return
	}
	s.respondFormSuccess(w, r, date)
}

func (s *Server) handleDeleteItemForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "Invalid request format").Write(w)
		return
	}
	date := sanitizeInput(r.Form.Get("date"))

	if _, err := s.ledger.DeleteItem(r.Context(), date, sanitizeInput(r.Form.Get("itemID"))); err != nil {
		s.respondFormError(w, r, applog.OpDelete, err)
		return
	}
	s.respondFormSuccess(w, r, date)
}

func (s *Server) respondFormSuccess(w http.ResponseWriter, r *http.Request, date string) {
	location := "/?date=" + url.QueryEscape(date)
	if isHTMX(r) {
		NewHTMXResponse().Redirect(location).Write(w)
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// respondFormError answers with an HTML fragment: 422 for bad input, 404
// for unknown items, 500 for store failures.
func (s *Server) respondFormError(w http.ResponseWriter, r *http.Request, op string, err error) {
	fields := applog.NewFields().WithOperation(op).WithError(err)
	logger := applog.FromContext(r.Context())

	switch status := statusFor(err); status {
	case http.StatusBadRequest:
		logger.InfoContext(r.Context(), "Form rejected", fields.ToSlice()...)
		ErrorResponse(http.StatusUnprocessableEntity, err.Error()).Write(w)
	case http.StatusNotFound:
		logger.InfoContext(r.Context(), "Form target not found", fields.ToSlice()...)
		ErrorResponse(status, err.Error()).Write(w)
	default:
		logger.ErrorContext(r.Context(), "Form operation failed", fields.ToSlice()...)
		ErrorResponse(status, "Failed to save data").Write(w)
	}
}
