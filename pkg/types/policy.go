package types

import "time"

// InsurancePolicy covers one or more homes. Home membership travels as Pair
// rows in Graph.HomePolicies.
type InsurancePolicy struct {
	ID             string     `json:"id"`
	Provider       string     `json:"provider"`
	PolicyNumber   *string    `json:"policy_number,omitempty"`
	CoverageAmount *float64   `json:"coverage_amount,omitempty"`
	Deductible     *float64   `json:"deductible,omitempty"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
}
