// api/models/telemetry.go
package models

import "time"

// Temperature is an actual/target pair in degrees Celsius
type Temperature struct {
	Actual float64 `json:"actual"`
	Target float64 `json:"target"`
}

// Telemetry is the latest status reported by a printer
type Telemetry struct {
	Progress         int         `json:"progress"`
	Stage            string      `json:"stage"`
	Substage         int         `json:"substage"`
	ErrorCode        int64       `json:"error_code"`
	RemainingMinutes int         `json:"remaining_minutes"`
	Layer            int         `json:"layer"`
	TotalLayers      int         `json:"total_layers"`
	Nozzle           Temperature `json:"nozzle"`
	Bed              Temperature `json:"bed"`
	Chamber          float64     `json:"chamber"`
	ReceivedAt       time.Time   `json:"received_at"`
}
