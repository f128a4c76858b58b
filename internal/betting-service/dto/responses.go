package dto

type ErrorResponse struct {
	Error string `json:"error"`
}

// OddsResponse é a odd atual de um objetivo
type OddsResponse struct {
	ObjectiveID string `json:"objectiveId"`
	Odds        int64  `json:"odds"`
}
