package httpapi

// rankedEntryDTO is the wire shape for one leaderboard row.
type rankedEntryDTO struct {
	CustomerID int64 `json:"customerId"`
	Score      int64 `json:"score"`
	Rank       int64 `json:"rank"`
}

type customerDTO struct {
	CustomerID int64 `json:"customerId"`
	Score      int64 `json:"score"`
	Rank       int64 `json:"rank"`
}

type healthDTO struct {
	Postgres bool `json:"postgres"`
	Redis    bool `json:"redis"`
}
