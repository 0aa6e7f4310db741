package models

// DosageSuggestion is a recommended chemical dose for one treatment issue
type DosageSuggestion struct {
	Chemical  string    `json:"chemical"`
	Parameter Parameter `json:"parameter"`
	Reason    string    `json:"reason"`
	DoseMgL   float64   `json:"dose_mg_per_l"`
	KgPerDay  float64   `json:"kg_per_day"`
}
