package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkbook/internal/catalog"
	"milkbook/internal/core"
	"milkbook/internal/ledger"
	applog "milkbook/internal/log"
	"milkbook/internal/middleware/ratelimit"
	"milkbook/internal/store/memory"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Output: io.Discard})
}

func newTestServer(t *testing.T, l Ledger, opts Options) *Server {
	t.Helper()
	opts.Logger = quietLogger()
	opts.Now = func() time.Time { return fixedNow }
	srv := NewServer(":0", l, catalog.Default(), opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func newLedger(records ...core.DayRecord) *ledger.Engine {
	return ledger.NewEngine(memory.New(records...), ledger.DefaultOptions(), quietLogger())
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func postForm(t *testing.T, srv *Server, target string, form url.Values, htmx bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

type viewJSON struct {
	Date         string          `json:"date"`
	Items        []core.LineItem `json:"items"`
	TotalPaid    core.Money      `json:"totalPaid"`
	CarryForward core.Money      `json:"carryForward"`
	Stored       bool            `json:"stored"`
	Summary      core.Summary    `json:"summary"`
}

type recordJSON struct {
	Success bool           `json:"success"`
	Record  core.DayRecord `json:"record"`
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

// downLedger fails every call the way the engine does when its store is
// unreachable.
type downLedger struct{}

var errDown = fmt.Errorf("%w: get 2024-03-01: connection refused", core.ErrStoreUnavailable)

func (downLedger) ComputeView(context.Context, string) (core.View, error) {
	return core.EmptyView(), errDown
}
func (downLedger) SaveDay(context.Context, string, []core.LineItem, core.Money) (core.DayRecord, error) {
	return core.DayRecord{}, errDown
}
func (downLedger) ApplyPayment(context.Context, string, core.Money) (core.DayRecord, error) {
	return core.DayRecord{}, errDown
}
func (downLedger) DeleteItem(context.Context, string, string) (core.DayRecord, error) {
	return core.DayRecord{}, errDown
}

func TestGetRecord(t *testing.T) {
	prev := core.DayRecord{
		Date:      core.NewDate(2024, 2, 29),
		Items:     []core.LineItem{core.NewLineItem("a", "Taza", core.QuantityFromFloat(4), core.MoneyFromInt(25))},
		TotalPaid: core.MoneyFromInt(60),
	}
	srv := newTestServer(t, newLedger(prev), Options{})

	t.Run("absent day carries previous balance", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/records?date=2024-03-01", "")
		require.Equal(t, http.StatusOK, rr.Code)
		v := decode[viewJSON](t, rr)
		assert.Equal(t, "2024-03-01", v.Date)
		assert.Empty(t, v.Items)
		assert.False(t, v.Stored)
		assert.Equal(t, "40.00", v.CarryForward.String())
		assert.Equal(t, "40.00", v.Summary.GrandRemaining.String())
	})

	t.Run("stored day", func(t *testing.T) {
		v := decode[viewJSON](t, do(t, srv, http.MethodGet, "/api/records?date=2024-02-29", ""))
		assert.True(t, v.Stored)
		require.Len(t, v.Items, 1)
		assert.Equal(t, "100.00", v.Summary.TotalBilled.String())
		assert.Equal(t, "40.00", v.Summary.Remaining.String())
	})

	for _, target := range []string{"/api/records", "/api/records?date=", "/api/records?date=01-03-2024"} {
		t.Run("zero view for "+target, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, target, "")
			require.Equal(t, http.StatusOK, rr.Code)
			v := decode[viewJSON](t, rr)
			assert.Empty(t, v.Items)
			assert.NotNil(t, v.Items)
			assert.True(t, v.TotalPaid.IsZero())
			assert.True(t, v.CarryForward.IsZero())
		})
	}
}

func TestGetRecord_StoreDownDegrades(t *testing.T) {
	srv := newTestServer(t, downLedger{}, Options{})
	rr := do(t, srv, http.MethodGet, "/api/records?date=2024-03-01", "")
	require.Equal(t, http.StatusOK, rr.Code)
	v := decode[viewJSON](t, rr)
	assert.Empty(t, v.Items)
	assert.True(t, v.Summary.GrandRemaining.IsZero())
}

func TestSaveRecord(t *testing.T) {
	srv := newTestServer(t, newLedger(), Options{})

	body := `{"date":"2024-03-01","items":[{"productType":"Taza","quantity":2,"rate":"25","total":999},{"id":"x","type":"Chhas","quantity":1.5,"rate":20}],"totalPaid":20}`
	rr := do(t, srv, http.MethodPost, "/api/records", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	res := decode[recordJSON](t, rr)
	assert.True(t, res.Success)
	require.Len(t, res.Record.Items, 2)
	assert.NotEmpty(t, res.Record.Items[0].ID, "missing id is generated")
	assert.Equal(t, "50.00", res.Record.Items[0].Total.String(), "supplied total is ignored")
	assert.Equal(t, "Chhas", res.Record.Items[1].ProductType)
	assert.Equal(t, "30.00", res.Record.Items[1].Total.String())

	next := decode[viewJSON](t, do(t, srv, http.MethodGet, "/api/records?date=2024-03-02", ""))
	assert.Equal(t, "60.00", next.CarryForward.String())
}

func TestSaveRecord_TotalPaidDefaultsToZero(t *testing.T) {
	srv := newTestServer(t, newLedger(), Options{})
	rr := do(t, srv, http.MethodPost, "/api/records", `{"date":"2024-03-01","items":[]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[recordJSON](t, rr).Record.TotalPaid.IsZero())
}

func TestSaveRecord_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed", `{"date":`},
		{"unknown field", `{"date":"2024-03-01","items":[],"note":"x"}`},
		{"unknown item field", `{"date":"2024-03-01","items":[{"productType":"Taza","quantity":1,"rate":1,"colour":"red"}]}`},
		{"trailing object", `{"date":"2024-03-01","items":[]}{}`},
		{"missing date", `{"items":[]}`},
		{"bad date", `{"date":"2024-02-30","items":[]}`},
		{"negative quantity", `{"date":"2024-03-01","items":[{"productType":"Taza","quantity":-1,"rate":1}]}`},
		{"negative rate", `{"date":"2024-03-01","items":[{"productType":"Taza","quantity":1,"rate":-1}]}`},
		{"missing product", `{"date":"2024-03-01","items":[{"quantity":1,"rate":1}]}`},
		{"conflicting product names", `{"date":"2024-03-01","items":[{"productType":"Taza","type":"Chhas","quantity":1,"rate":1}]}`},
		{"duplicate ids", `{"date":"2024-03-01","items":[{"id":"a","productType":"Taza","quantity":1,"rate":1},{"id":"a","productType":"Chhas","quantity":1,"rate":1}]}`},
		{"negative paid", `{"date":"2024-03-01","items":[],"totalPaid":-5}`},
		{"non numeric rate", `{"date":"2024-03-01","items":[{"productType":"Taza","quantity":1,"rate":"abc"}]}`},
		{"huge paid exponent", `{"date":"2024-03-01","items":[],"totalPaid":1e400000}`},
		{"tiny paid exponent", `{"date":"2024-03-01","items":[],"totalPaid":1e-400000}`},
		{"huge quantity exponent", `{"date":"2024-03-01","items":[{"productType":"Taza","quantity":1e400000,"rate":1}]}`},
	}

	srv := newTestServer(t, newLedger(), Options{RateLimit: ratelimit.Config{RequestsPerMinute: 1000}})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/records", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.NotEmpty(t, decode[errorBody](t, rr).Error)
		})
	}
}

func TestSaveRecord_StoreFailure(t *testing.T) {
	srv := newTestServer(t, downLedger{}, Options{})
	rr := do(t, srv, http.MethodPost, "/api/records", `{"date":"2024-03-01","items":[]}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Failed to save data"}`, rr.Body.String())
}

func TestApplyPayment(t *testing.T) {
	day := core.DayRecord{
		Date:         core.NewDate(2024, 3, 1),
		Items:        []core.LineItem{core.NewLineItem("a", "Taza", core.QuantityFromFloat(2), core.MoneyFromInt(25))},
		TotalPaid:    core.MoneyFromInt(10),
		CarryForward: core.MoneyFromInt(7),
	}
	srv := newTestServer(t, newLedger(day), Options{})

	rr := do(t, srv, http.MethodPost, "/api/records/2024-03-01/payments", `{"amount":15.5}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rec := decode[recordJSON](t, rr).Record
	assert.Equal(t, "25.50", rec.TotalPaid.String())
	assert.Equal(t, "7.00", rec.CarryForward.String())
	assert.Len(t, rec.Items, 1)

	for _, body := range []string{`{"amount":0}`, `{"amount":-3}`, `{}`, `{"amount":5,"note":"x"}`, `{"amount":1e400000}`, `{"amount":1e-400000}`} {
		rr := do(t, srv, http.MethodPost, "/api/records/2024-03-01/payments", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}

	rr = do(t, srv, http.MethodPost, "/api/records/not-a-date/payments", `{"amount":5}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteItem(t *testing.T) {
	day := core.DayRecord{
		Date: core.NewDate(2024, 3, 1),
		Items: []core.LineItem{
			core.NewLineItem("a", "Taza", core.QuantityFromFloat(2), core.MoneyFromInt(25)),
			core.NewLineItem("b", "Chhas", core.QuantityFromFloat(1), core.MoneyFromInt(20)),
		},
		TotalPaid: core.MoneyFromInt(10),
	}
	srv := newTestServer(t, newLedger(day), Options{})

	rr := do(t, srv, http.MethodDelete, "/api/records/2024-03-01/items/a", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rec := decode[recordJSON](t, rr).Record
	require.Len(t, rec.Items, 1)
	assert.Equal(t, "b", rec.Items[0].ID)
	assert.Equal(t, "10.00", rec.TotalPaid.String())

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/api/records/2024-03-01/items/a", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/api/records/2024-03-05/items/a", "").Code)
}

func TestProducts(t *testing.T) {
	srv := newTestServer(t, newLedger(), Options{})
	rr := do(t, srv, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, rr.Code)

	res := decode[struct {
		Products []catalog.Product `json:"products"`
	}](t, rr)
	require.Len(t, res.Products, 5)
	assert.Equal(t, "Amul Gold", res.Products[0].Type)
}

func TestDayPage(t *testing.T) {
	prev := core.DayRecord{
		Date:      core.NewDate(2024, 2, 29),
		Items:     []core.LineItem{core.NewLineItem("a", "Taza", core.QuantityFromFloat(4), core.MoneyFromInt(25))},
		TotalPaid: core.MoneyFromInt(60),
	}
	srv := newTestServer(t, newLedger(prev), Options{})

	t.Run("defaults to today", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/", "")
		require.Equal(t, http.StatusOK, rr.Code)
		body := rr.Body.String()
		assert.Contains(t, body, "<strong>2024-03-01</strong>")
		assert.Contains(t, body, `href="/?date=2024-02-29"`)
		assert.Contains(t, body, `href="/?date=2024-03-02"`)
		assert.Contains(t, body, "₹40.00", "carry forward from the previous day")
		assert.Contains(t, body, "Amul Gold (500ml)")
		assert.NotContains(t, body, ">Today<")
		assert.Contains(t, body, "htmx.org")
		assert.Contains(t, body, `hx-post="/ui/payments"`)
		assert.Contains(t, body, `max="40.00"`, "payment input is capped at the grand remaining")
	})

	t.Run("nothing owed leaves payment uncapped", func(t *testing.T) {
		body := do(t, srv, http.MethodGet, "/?date=2024-02-28", "").Body.String()
		assert.NotContains(t, body, ` max="`)
	})

	t.Run("stored day lists items", func(t *testing.T) {
		body := do(t, srv, http.MethodGet, "/?date=2024-02-29", "").Body.String()
		assert.Contains(t, body, "Taza (150ml)")
		assert.Contains(t, body, "₹100.00")
		assert.Contains(t, body, ">Today<")
	})

	t.Run("invalid date falls back to today", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/?date=yesterday", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "<strong>2024-03-01</strong>")
		assert.Contains(t, rr.Body.String(), `class="error"`)
	})

	t.Run("store down still renders", func(t *testing.T) {
		down := newTestServer(t, downLedger{}, Options{})
		rr := do(t, down, http.MethodGet, "/?date=2024-03-01", "")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Could not load this day")
	})
}

func TestForms(t *testing.T) {
	l := newLedger()
	srv := newTestServer(t, l, Options{RateLimit: ratelimit.Config{RequestsPerMinute: 1000}})
	ctx := context.Background()

	rr := postForm(t, srv, "/ui/items", url.Values{
		"date": {"2024-03-01"}, "productType": {"Taza"}, "quantity": {"2"}, "rate": {"12,5"},
	}, false)
	require.Equal(t, http.StatusSeeOther, rr.Code, rr.Body.String())
	assert.Equal(t, "/?date=2024-03-01", rr.Header().Get("Location"))

	rr = postForm(t, srv, "/ui/items", url.Values{
		"date": {"2024-03-01"}, "productType": {"Chhas"}, "quantity": {"1"}, "rate": {"20"},
	}, true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "/?date=2024-03-01", rr.Header().Get("HX-Redirect"))
	assert.Empty(t, rr.Body.String())

	view, err := l.ComputeView(ctx, "2024-03-01")
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "45.00", view.Summary().TotalBilled.String())

	rr = postForm(t, srv, "/ui/payments", url.Values{"date": {"2024-03-01"}, "amount": {"30"}}, false)
	require.Equal(t, http.StatusSeeOther, rr.Code)

	rr = postForm(t, srv, "/ui/items/delete", url.Values{"date": {"2024-03-01"}, "itemID": {view.Items[0].ID}}, false)
	require.Equal(t, http.StatusSeeOther, rr.Code)

	view, err = l.ComputeView(ctx, "2024-03-01")
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "30.00", view.TotalPaid.String())
}

func TestForms_Errors(t *testing.T) {
	srv := newTestServer(t, newLedger(), Options{RateLimit: ratelimit.Config{RequestsPerMinute: 1000}})

	tests := []struct {
		name   string
		target string
		form   url.Values
		want   int
	}{
		{"missing product", "/ui/items", url.Values{"date": {"2024-03-01"}, "quantity": {"1"}, "rate": {"1"}}, http.StatusUnprocessableEntity},
		{"bad quantity", "/ui/items", url.Values{"date": {"2024-03-01"}, "productType": {"Taza"}, "quantity": {"x"}, "rate": {"1"}}, http.StatusUnprocessableEntity},
		{"bad date", "/ui/items", url.Values{"date": {"soon"}, "productType": {"Taza"}, "quantity": {"1"}, "rate": {"1"}}, http.StatusUnprocessableEntity},
		{"zero payment", "/ui/payments", url.Values{"date": {"2024-03-01"}, "amount": {"0"}}, http.StatusUnprocessableEntity},
		{"negative payment", "/ui/payments", url.Values{"date": {"2024-03-01"}, "amount": {"-1"}}, http.StatusUnprocessableEntity},
		{"huge payment exponent", "/ui/payments", url.Values{"date": {"2024-03-01"}, "amount": {"1e400000"}}, http.StatusUnprocessableEntity},
		{"tiny rate exponent", "/ui/items", url.Values{"date": {"2024-03-01"}, "productType": {"Taza"}, "quantity": {"1"}, "rate": {"1e-400000"}}, http.StatusUnprocessableEntity},
		{"huge quantity exponent", "/ui/items", url.Values{"date": {"2024-03-01"}, "productType": {"Taza"}, "quantity": {"1e400000"}, "rate": {"1"}}, http.StatusUnprocessableEntity},
		{"unknown item", "/ui/items/delete", url.Values{"date": {"2024-03-01"}, "itemID": {"nope"}}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postForm(t, srv, tt.target, tt.form, false)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
			assert.Contains(t, rr.Body.String(), `class="error"`)
		})
	}

	down := newTestServer(t, downLedger{}, Options{})
	rr := postForm(t, down, "/ui/payments", url.Values{"date": {"2024-03-01"}, "amount": {"5"}}, false)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "Failed to save data")
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, newLedger(), Options{})
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "").Code)

	rr := do(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ready"`)

	down := newTestServer(t, downLedger{}, Options{})
	rr = do(t, down, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMiddleware(t *testing.T) {
	srv := newTestServer(t, newLedger(), Options{RateLimit: ratelimit.Config{RequestsPerMinute: 1}})

	rr := do(t, srv, http.MethodGet, "/api/products", "")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	body := `{"date":"2024-03-01","items":[]}`
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/records", body).Code)
	rr = do(t, srv, http.MethodPost, "/api/records", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/records?date=2024-03-01", "").Code)
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, newLedger(), Options{CORSOrigins: []string{"https://shop.example"}})

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("Origin", "https://shop.example")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, "https://shop.example", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestFormatRupees(t *testing.T) {
	assert.Equal(t, "₹0.00", formatRupees(core.Money{}))
	assert.Equal(t, "₹1,234.50", formatRupees(core.MoneyFromFloat(1234.5)))
	assert.Equal(t, "-₹12.00", formatRupees(core.MoneyFromInt(-12)))
	assert.Equal(t, "₹100.00", formatRupees(core.MoneyFromInt(100)))
}
