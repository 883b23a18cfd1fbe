package model

import "time"

// BudgetPeriod is the window a budget limit applies to.
type BudgetPeriod string

// Budget periods.
const (
	PeriodDaily   BudgetPeriod = "daily"
	PeriodWeekly  BudgetPeriod = "weekly"
	PeriodMonthly BudgetPeriod = "monthly"
)

// ValidPeriods contains all valid budget periods.
var ValidPeriods = []BudgetPeriod{PeriodDaily, PeriodWeekly, PeriodMonthly}

// IsValid reports whether p is a known period.
func (p BudgetPeriod) IsValid() bool {
	for _, v := range ValidPeriods {
		if p == v {
			return true
		}
	}
	return false
}

// Budget is a spending limit for a project.
// HardStop marks the limit as blocking rather than advisory; nothing in
// this service acts on it.
type Budget struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"project_id"`
	LimitUSD  float64      `json:"limit_usd"`
	Period    BudgetPeriod `json:"period"`
	HardStop  bool         `json:"hard_stop"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
