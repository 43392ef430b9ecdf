package dto

import "tallybook/internal/core/types"

// AnalysisQuery holds the query parameters of the /analysis endpoints.
type AnalysisQuery struct {
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
	TopN      int    `form:"topN"`
}

// Range parses the date range. Missing dates are left zero for the service to reject.
func (q *AnalysisQuery) Range() (start, end types.Date, err error) {
	if start, err = ParseDate("startDate", q.StartDate); err != nil {
		return
	}
	end, err = ParseDate("endDate", q.EndDate)
	return
}
