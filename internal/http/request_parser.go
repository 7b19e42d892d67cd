package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"milkbook/internal/core"
)

const maxBodyBytes = 1 << 20

type itemRequest struct {
	ID          string        `json:"id"`
	ProductType string        `json:"productType"`
	Type        string        `json:"type"` // legacy name of productType
	Quantity    core.Quantity `json:"quantity"`
	Rate        core.Money    `json:"rate"`
	// Total is accepted and ignored; it is always recomputed.
	Total *core.Money `json:"total,omitempty"`
}

type saveRequest struct {
	Date      string        `json:"date"`
	Items     []itemRequest `json:"items"`
	TotalPaid *core.Money   `json:"totalPaid"`
}

func (req saveRequest) lineItems() ([]core.LineItem, error) {
	items := make([]core.LineItem, 0, len(req.Items))
	for i, it := range req.Items {
		productType := it.ProductType
		if productType == "" {
			productType = it.Type
		} else if it.Type != "" && it.Type != productType {
			return nil, fmt.Errorf("%w: item %d has conflicting productType and type", core.ErrInvalidItem, i+1)
		}
		items = append(items, core.NewLineItem(it.ID, sanitizeInput(productType), it.Quantity, it.Rate))
	}
	return items, nil
}

type paymentRequest struct {
	Amount *core.Money `json:"amount"`
}

// decodeJSONStrict decodes exactly one JSON object into dst, rejecting
// unknown fields and trailing data.
func decodeJSONStrict(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: request body is empty", core.ErrInvalidInput)
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: request body too large", core.ErrInvalidInput)
		case errors.Is(err, core.ErrInvalidInput):
			return err
		default:
			return fmt.Errorf("%w: malformed JSON: %v", core.ErrInvalidInput, err)
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: request body must contain a single JSON object", core.ErrInvalidInput)
	}
	return nil
}

// parseItemForm reads the add-item form. Quantity and rate accept a
// decimal comma.
func parseItemForm(form url.Values) (core.LineItem, error) {
	productType := sanitizeInput(form.Get("productType"))
	if productType == "" {
		return core.LineItem{}, fmt.Errorf("%w: choose a product", core.ErrInvalidItem)
	}
	qty, err := core.ParseQuantity(form.Get("quantity"))
	if err != nil {
		return core.LineItem{}, fmt.Errorf("%w: quantity", err)
	}
	rate, err := core.ParseMoney(form.Get("rate"))
	if err != nil {
		return core.LineItem{}, fmt.Errorf("%w: rate", err)
	}
	return core.NewLineItem("", productType, qty, rate), nil
}
