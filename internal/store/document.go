package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"milkbook/internal/core"
)

// A ledger document is a single JSON object mapping date keys to records,
// the layout used by the file backend, the memory seed and the exports of
// the hosted JSON bin the shop used before. Older exports name the item
// list "records" and the product field "type"; both spellings are read.

type docItem struct {
	ID          string        `json:"id"`
	ProductType string        `json:"productType,omitempty"`
	LegacyType  string        `json:"type,omitempty"`
	Quantity    core.Quantity `json:"quantity"`
	Rate        core.Money    `json:"rate"`
	Total       core.Money    `json:"total"`
}

type docRecord struct {
	Date         string     `json:"date,omitempty"`
	Items        []docItem  `json:"items"`
	LegacyItems  []docItem  `json:"records,omitempty"`
	TotalPaid    core.Money `json:"totalPaid"`
	CarryForward core.Money `json:"carryForward"`
}

// DecodeDocument parses a ledger document. Item totals are recomputed and
// the map key wins over a missing or empty embedded date.
func DecodeDocument(raw []byte) ([]core.DayRecord, error) {
	var doc map[string]docRecord
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode ledger document: %w", err)
	}
	out := make([]core.DayRecord, 0, len(doc))
	for key, dr := range doc {
		date, err := core.ParseDate(key)
		if err != nil {
			return nil, fmt.Errorf("document key %q: %w", key, err)
		}
		items := dr.Items
		if len(items) == 0 {
			items = dr.LegacyItems
		}
		rec := core.DayRecord{
			Date:         date,
			Items:        make([]core.LineItem, 0, len(items)),
			TotalPaid:    dr.TotalPaid,
			CarryForward: dr.CarryForward,
		}
		for _, it := range items {
			productType := it.ProductType
			if productType == "" {
				productType = it.LegacyType
			}
			rec.Items = append(rec.Items, core.NewLineItem(it.ID, productType, it.Quantity, it.Rate))
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out, nil
}

// EncodeDocument renders records as an indented ledger document.
func EncodeDocument(records []core.DayRecord) ([]byte, error) {
	doc := make(map[string]core.DayRecord, len(records))
	for _, r := range records {
		r = r.Clone()
		doc[r.Date.String()] = r
	}
	return json.MarshalIndent(doc, "", "  ")
}
