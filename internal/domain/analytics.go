package domain

// DepartmentStats counts a department's tickets by outcome.
type DepartmentStats struct {
	DepartmentID   string `json:"department_id"`
	DepartmentName string `json:"department_name"`
	OpenTickets    int64  `json:"open_tickets"`
	ClosedTickets  int64  `json:"closed_tickets"`
	ClosedOnTime   int64  `json:"closed_on_time"`
	ClosedDelayed  int64  `json:"closed_delayed"`
}

// EmailTypeCount is a per-kind email log tally.
type EmailTypeCount struct {
	EmailType string `json:"email_type"`
	Count     int64  `json:"count"`
}

// EmailStats summarizes email log activity for today and the current month.
type EmailStats struct {
	Today struct {
		Total      int64            `json:"total"`
		ByType     []EmailTypeCount `json:"byType"`
		Successful int64            `json:"successful"`
		Failed     int64            `json:"failed"`
	} `json:"today"`
	Month struct {
		Total  int64            `json:"total"`
		ByType []EmailTypeCount `json:"byType"`
	} `json:"month"`
}
