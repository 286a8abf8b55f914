package bambu

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/devadigapratham/pandaprint/api/models"
)

// Printer stages as reported in gcode_state
const (
	StageIdle    = "IDLE"
	StagePrepare = "PREPARE"
	StageSlicing = "SLICING"
	StageRunning = "RUNNING"
	StagePause   = "PAUSE"
	StageFinish  = "FINISH"
	StageFailed  = "FAILED"
)

// Report is one parsed message from the report topic. Exactly one of
// Telemetry and Reply is set.
type Report struct {
	Telemetry *models.Telemetry
	Reply     *Reply
}

// Reply is the printer's answer to a command we published
type Reply struct {
	Command  string
	Sequence string
	Result   string
	Reason   string
}

// Failed reports whether the printer rejected the command
func (r *Reply) Failed() bool {
	return strings.EqualFold(r.Result, "fail") || strings.EqualFold(r.Result, "failed")
}

type rawReport struct {
	Print *rawPrint `json:"print"`
}

type rawPrint struct {
	Command            string     `json:"command"`
	SequenceID         flexString `json:"sequence_id"`
	Result             string     `json:"result"`
	Reason             string     `json:"reason"`
	GcodeState         *string    `json:"gcode_state"`
	Percent            int        `json:"mc_percent"`
	RemainingTime      int        `json:"mc_remaining_time"`
	Substage           int        `json:"stg_cur"`
	PrintError         int64      `json:"print_error"`
	LayerNum           int        `json:"layer_num"`
	TotalLayerNum      int        `json:"total_layer_num"`
	NozzleTemper       float64    `json:"nozzle_temper"`
	NozzleTargetTemper float64    `json:"nozzle_target_temper"`
	BedTemper          float64    `json:"bed_temper"`
	BedTargetTemper    float64    `json:"bed_target_temper"`
	ChamberTemper      float64    `json:"chamber_temper"`
}

// flexString accepts both JSON strings and numbers
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// ParseReport decodes a report payload. Messages that are not print reports
// yield a *ProtocolError.
func ParseReport(payload []byte, receivedAt time.Time) (Report, error) {
	var raw rawReport
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Report{}, &ProtocolError{Reason: "malformed json", Err: err}
	}
	p := raw.Print
	if p == nil {
		return Report{}, &ProtocolError{Reason: "no print object"}
	}

	if p.Command == "push_status" || p.GcodeState != nil {
		t := &models.Telemetry{
			Progress:         p.Percent,
			Substage:         p.Substage,
			ErrorCode:        p.PrintError,
			RemainingMinutes: p.RemainingTime,
			Layer:            p.LayerNum,
			TotalLayers:      p.TotalLayerNum,
			Nozzle:           models.Temperature{Actual: p.NozzleTemper, Target: p.NozzleTargetTemper},
			Bed:              models.Temperature{Actual: p.BedTemper, Target: p.BedTargetTemper},
			Chamber:          p.ChamberTemper,
			ReceivedAt:       receivedAt,
		}
		if p.GcodeState != nil {
			t.Stage = strings.ToUpper(*p.GcodeState)
		}
		return Report{Telemetry: t}, nil
	}

	if p.Command != "" {
		return Report{Reply: &Reply{
			Command:  p.Command,
			Sequence: string(p.SequenceID),
			Result:   p.Result,
			Reason:   p.Reason,
		}}, nil
	}
	return Report{}, &ProtocolError{Reason: "unrecognized print message"}
}

// IsActiveStage reports whether the printer is working on a job
func IsActiveStage(stage string) bool {
	switch stage {
	case StagePrepare, StageSlicing, StageRunning, StagePause:
		return true
	}
	return false
}

// IsDoneStage reports whether the printer has finished and returned to rest
func IsDoneStage(stage string) bool {
	return stage == StageFinish || stage == StageIdle
}
