package domain

// MapUpdateEventName is the broadcast event name listened to by the map frontend.
const MapUpdateEventName = "mapUpdate"

// MapUpdateEvent signals that a recognized location was mentioned in a chat turn.
// Sentiment is nil when no story matched the location.
type MapUpdateEvent struct {
	Location     string     `json:"location"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	StorySummary string     `json:"storySummary"`
	Sentiment    *Sentiment `json:"sentiment"`
}
