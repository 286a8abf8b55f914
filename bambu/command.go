package bambu

import (
	"path"

	"github.com/devadigapratham/pandaprint/api/models"
)

const (
	// Username is the fixed LAN-mode user for both MQTT and FTPS
	Username = "bblp"

	// DefaultMQTTPort is the printer's MQTT-over-TLS port
	DefaultMQTTPort = 8883
	// DefaultFTPSPort is the printer's implicit FTPS port
	DefaultFTPSPort = 990

	// PlateParam is the gcode entry every uploaded project is started from
	PlateParam = "Metadata/plate_1.gcode"
)

// ReportTopic is where the printer publishes telemetry
func ReportTopic(serial string) string {
	return "device/" + serial + "/report"
}

// RequestTopic is where the printer listens for commands
func RequestTopic(serial string) string {
	return "device/" + serial + "/request"
}

// StoragePath is the FTPS destination of an uploaded file
func StoragePath(filename string) string {
	return path.Join("/model", path.Base(filename))
}

// PrintURL is the printer-local URL of a file stored with StoragePath
func PrintURL(filename string) string {
	return "file:///sdcard" + StoragePath(filename)
}

// Command is the JSON envelope published on the request topic
type Command struct {
	Print map[string]any `json:"print"`
}

// ProjectFileCommand builds the command that starts printing an uploaded
// project. Only configured options are included.
func ProjectFileCommand(filename string, options models.PrintOptions, sequence string) Command {
	data := map[string]any{
		"sequence_id":  sequence,
		"command":      "project_file",
		"param":        PlateParam,
		"project_id":   "0",
		"profile_id":   "0",
		"task_id":      "0",
		"subtask_id":   "0",
		"subtask_name": "",
		"url":          PrintURL(filename),
		"bed_type":     "auto",
	}
	for name, v := range options.Map() {
		data[name] = v
	}
	return Command{Print: data}
}
