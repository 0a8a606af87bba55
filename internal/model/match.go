package model

// MatchCandidate is a company surfaced by the duplicate matcher,
// carrying the similarity score used for ranking. Candidates exist
// only for the duration of one match operation and are never persisted.
type MatchCandidate struct {
	Company Company `json:"company"`
	Score   float64 `json:"score"`
}

// RegistryStats aggregates registry counts for the dashboard.
type RegistryStats struct {
	CompaniesByStatus map[CompanyStatus]int `json:"companies_by_status"`
	RequestsByStatus  map[RequestStatus]int `json:"requests_by_status"`
	CompaniesByState  map[string]int        `json:"companies_by_state"`
	TotalCompanies    int                   `json:"total_companies"`
	TotalRequests     int                   `json:"total_requests"`
}
