package core

// View is what a caller sees for one date: the stored record, or a
// synthesized empty day carrying the previous balance.
type View struct {
	Date         Date       `json:"date"`
	Items        []LineItem `json:"items"`
	TotalPaid    Money      `json:"totalPaid"`
	CarryForward Money      `json:"carryForward"`
	// Stored is false when the view was synthesized for a date without a record.
	Stored bool `json:"stored"`
}

// Summary holds the day-level aggregate figures.
type Summary struct {
	TotalBilled    Money `json:"totalBilled"`
	TotalPaid      Money `json:"totalPaid"`
	Remaining      Money `json:"remaining"`
	CarryForward   Money `json:"carryForward"`
	GrandRemaining Money `json:"grandRemaining"`
}

// EmptyView is the zero-valued shape returned when nothing can be resolved.
func EmptyView() View {
	return View{Items: []LineItem{}}
}

// ViewOf exposes a stored record as-is.
func ViewOf(r DayRecord) View {
	r = r.Clone()
	return View{
		Date:         r.Date,
		Items:        r.Items,
		TotalPaid:    r.TotalPaid,
		CarryForward: r.CarryForward,
		Stored:       true,
	}
}

// Summary computes totals; grand remaining = items - paid + carry forward.
func (v View) Summary() Summary {
	billed := ItemsTotal(v.Items)
	remaining := billed.Sub(v.TotalPaid)
	return Summary{
		TotalBilled:    billed,
		TotalPaid:      v.TotalPaid,
		Remaining:      remaining,
		CarryForward:   v.CarryForward,
		GrandRemaining: remaining.Add(v.CarryForward),
	}
}

// Record converts the view back into a persistable record.
func (v View) Record() DayRecord {
	return DayRecord{
		Date:         v.Date,
		Items:        append([]LineItem{}, v.Items...),
		TotalPaid:    v.TotalPaid,
		CarryForward: v.CarryForward,
	}
}
