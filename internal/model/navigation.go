package model

// NavigationHistoryEntry is one visit in a user's navigation history.
type NavigationHistoryEntry struct {
	Timestamp string `json:"timestamp"`
	Location  string `json:"location"`
}

// SummarizeHistoryRequest is the request to summarize navigation history.
type SummarizeHistoryRequest struct {
	History []NavigationHistoryEntry `json:"history"`
}

// SummarizeHistoryResponse is the response carrying the generated summary.
type SummarizeHistoryResponse struct {
	Summary string `json:"summary"`
}
