package handlers

import (
	"net/http"

	"github.com/devadigapratham/pandaprint/api/models"
	"github.com/devadigapratham/pandaprint/bambu"
	"github.com/devadigapratham/pandaprint/bridge"
	"github.com/gin-gonic/gin"
)

// Version is the body of the version endpoint. Slicers only check that it
// looks like OctoPrint.
var Version = gin.H{
	"api":    "1.1.0",
	"server": "1.1.0",
	"text":   "OctoPrint 1.1.0 (PandaPrint 1.0)",
}

type stateFlags struct {
	Operational   bool `json:"operational"`
	Printing      bool `json:"printing"`
	Paused        bool `json:"paused"`
	Ready         bool `json:"ready"`
	Error         bool `json:"error"`
	ClosedOrError bool `json:"closedOrError"`
}

type stateInfo struct {
	Text  string     `json:"text"`
	Flags stateFlags `json:"flags"`
}

// printerState derives the OctoPrint state from the session and telemetry
func printerState(session bambu.SessionState, t models.Telemetry, hasTelemetry bool) stateInfo {
	switch session {
	case bambu.StateConnected:
	case bambu.StateError:
		return stateInfo{Text: "Error", Flags: stateFlags{Error: true, ClosedOrError: true}}
	default:
		return stateInfo{Text: "Offline", Flags: stateFlags{ClosedOrError: true}}
	}

	if !hasTelemetry {
		return stateInfo{Text: "Operational", Flags: stateFlags{Operational: true, Ready: true}}
	}
	switch {
	case t.ErrorCode != 0 || t.Stage == bambu.StageFailed:
		return stateInfo{Text: "Error", Flags: stateFlags{Operational: true, Error: true, ClosedOrError: true}}
	case t.Stage == bambu.StagePause:
		return stateInfo{Text: "Paused", Flags: stateFlags{Operational: true, Paused: true}}
	case bambu.IsActiveStage(t.Stage):
		return stateInfo{Text: "Printing", Flags: stateFlags{Operational: true, Printing: true}}
	}
	return stateInfo{Text: "Operational", Flags: stateFlags{Operational: true, Ready: true}}
}

// GetPrinter returns the printer's state and temperatures
func (h *Handler) GetPrinter(c *gin.Context) {
	n := node(c)
	t, ok := n.Telemetry()

	resp := gin.H{"state": printerState(n.Session().State(), t, ok)}
	if ok {
		resp["temperature"] = gin.H{
			"tool0": t.Nozzle,
			"bed":   t.Bed,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GetVersion returns the OctoPrint version document
func (h *Handler) GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, Version)
}

// GetStatus returns session state, current job and telemetry of every printer
func (h *Handler) GetStatus(c *gin.Context) {
	nodes := h.Bridge.Nodes()
	printers := make([]bridge.NodeStatus, 0, len(nodes))
	for _, n := range nodes {
		printers = append(printers, n.Status())
	}
	c.JSON(http.StatusOK, gin.H{"printers": printers})
}
