package models

// APIResponse is the standard JSON envelope of the HTTP API.
type APIResponse struct {
	Status bool        `json:"status"`
	Msg    string      `json:"msg"`
	Obj    interface{} `json:"obj"`
}

// PaginatedResponse wraps list results with pagination info.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// PlanView is the catalog projection of a plan with derived attributes.
type PlanView struct {
	Plan
	DurationLabel string `json:"duration_label"`
	DurationGroup string `json:"duration_group"`
	MonthlyPrice  int64  `json:"monthly_price"`
}

// NewPlanView builds the catalog projection for p.
func NewPlanView(p Plan) PlanView {
	return PlanView{
		Plan:          p,
		DurationLabel: p.DurationLabel(),
		DurationGroup: p.DurationGroup(),
		MonthlyPrice:  p.MonthlyPrice(),
	}
}
