// Package institution manages the cooperative master data that uploads,
// mappings and balances hang off.
package institution

import "time"

// Institution is one agricultural cooperative (JA). Code is the natural key
// used across every other table.
type Institution struct {
	Code          string    `json:"code" db:"code"`
	Name          string    `json:"name" db:"name"`
	Prefecture    string    `json:"prefecture" db:"prefecture"`
	Scale         *string   `json:"scale,omitempty" db:"scale"`
	Year          int       `json:"year" db:"year"`
	AvailableData string    `json:"available_data" db:"available_data"`
	LastUpdated   time.Time `json:"last_updated" db:"last_updated"`
}
