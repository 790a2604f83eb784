package domain

import (
	"sort"
	"time"
)

// FinanceNiche is the niche finance entries are filed under.
const FinanceNiche = "Finanças"

// Probability weights an unconfirmed entry by how far along its task is.
func Probability(status TaskStatus) float64 {
	switch status {
	case StatusDone:
		return 1.0
	case StatusInProgress:
		return 0.60
	case StatusTodo:
		return 0.30
	default:
		return 0.1
	}
}

// IsFinancial reports whether the task belongs in the finance view.
func (t Task) IsFinancial() bool {
	return t.Niche == FinanceNiche || (t.Value != nil && *t.Value != 0)
}

// Amount returns the task value, zero when unset.
func (t Task) Amount() float64 {
	if t.Value == nil {
		return 0
	}
	return *t.Value
}

// Kind returns the explicit financial type, falling back to the sign of the value.
func (t Task) Kind() FinancialType {
	if t.FinancialType != "" {
		return t.FinancialType
	}
	if t.Amount() < 0 {
		return Expense
	}
	return Income
}

// Category returns the financial category, defaulting to DefaultNiche.
func (t Task) Category() string {
	if t.FinancialCategory != "" {
		return t.FinancialCategory
	}
	return DefaultNiche
}

// MonthProjection aggregates the entries due in one calendar month.
type MonthProjection struct {
	Month      string  `json:"month"`
	Guaranteed float64 `json:"guaranteed"`
	Projected  float64 `json:"projected"`
	Gap        float64 `json:"gap"`
	Expenses   float64 `json:"expenses"`
	Cumulative float64 `json:"cumulative"`
}

// FinanceSummary is the finance dashboard's view over the task collection.
type FinanceSummary struct {
	Income          float64            `json:"income"`
	Expenses        float64            `json:"expenses"`
	Balance         float64            `json:"balance"`
	ByCategory      map[string]float64 `json:"byCategory"`
	Months          []MonthProjection  `json:"months"`
	TotalGuaranteed float64            `json:"totalGuaranteed"`
	TotalProjected  float64            `json:"totalProjected"`
	Entries         int                `json:"entries"`
}

// Summarize computes totals over the financial tasks and a projection for
// the given number of months starting with the month containing from.
// Completed entries count as guaranteed; open ones are weighted by Probability.
func Summarize(tasks []Task, from time.Time, months int) FinanceSummary {
	sum := FinanceSummary{ByCategory: map[string]float64{}}
	if months < 0 {
		months = 0
	}
	sum.Months = make([]MonthProjection, months)
	index := make(map[string]int, months)
	start := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < months; i++ {
		key := start.AddDate(0, i, 0).Format("2006-01")
		sum.Months[i].Month = key
		index[key] = i
	}

	for _, t := range tasks {
		if !t.IsFinancial() {
			continue
		}
		sum.Entries++
		val := t.Amount()
		if t.Kind() == Expense {
			sum.Expenses += abs(val)
		} else {
			sum.Income += abs(val)
		}
		sum.ByCategory[t.Category()] += val

		if len(t.DueDate) < 7 {
			continue
		}
		i, ok := index[t.DueDate[:7]]
		if !ok {
			continue
		}
		m := &sum.Months[i]
		prob := Probability(t.Status)
		switch {
		case t.Status == StatusDone:
			m.Guaranteed += val
			m.Projected += val
		case val < 0:
			m.Projected += val * prob
		default:
			m.Projected += val * prob
			m.Gap += val * prob
		}
		if val < 0 {
			m.Expenses += abs(val)
		}
	}
	sum.Balance = sum.Income - sum.Expenses

	var acc float64
	for i := range sum.Months {
		acc += sum.Months[i].Projected
		sum.Months[i].Cumulative = acc
		sum.TotalGuaranteed += sum.Months[i].Guaranteed
		sum.TotalProjected += sum.Months[i].Projected
	}
	return sum
}

// SortByDueDesc orders financial records newest due date first; undated last.
func SortByDueDesc(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].DueDate > tasks[j].DueDate
	})
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
