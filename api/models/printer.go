// api/models/printer.go
package models

// Printer is a LAN-mode printer reachable by the bridge
type Printer struct {
	Name    string       `json:"name" mapstructure:"name" yaml:"name"`
	Host    string       `json:"host" mapstructure:"host" yaml:"host"`
	Serial  string       `json:"serial" mapstructure:"serial" yaml:"serial"`
	Key     string       `json:"-" mapstructure:"key" yaml:"key"`
	Options PrintOptions `json:"options" mapstructure:",squash" yaml:",inline"`
}

// PrintOptions holds the boolean switches sent with a print command.
// A nil field was never configured and is left out of the command.
type PrintOptions struct {
	Timelapse     *bool `json:"timelapse,omitempty" mapstructure:"timelapse" yaml:"timelapse,omitempty"`
	BedLevelling  *bool `json:"bed_levelling,omitempty" mapstructure:"bed_levelling" yaml:"bed_levelling,omitempty"`
	FlowCali      *bool `json:"flow_cali,omitempty" mapstructure:"flow_cali" yaml:"flow_cali,omitempty"`
	VibrationCali *bool `json:"vibration_cali,omitempty" mapstructure:"vibration_cali" yaml:"vibration_cali,omitempty"`
	LayerInspect  *bool `json:"layer_inspect,omitempty" mapstructure:"layer_inspect" yaml:"layer_inspect,omitempty"`
	UseAMS        *bool `json:"use_ams,omitempty" mapstructure:"use_ams" yaml:"use_ams,omitempty"`
}

// OptionNames lists the print option keys in command order
var OptionNames = []string{
	"timelapse",
	"bed_levelling",
	"flow_cali",
	"vibration_cali",
	"layer_inspect",
	"use_ams",
}

// Bool returns a pointer to b
func Bool(b bool) *bool {
	return &b
}

// Merge returns a copy of o with every non-nil field of overrides applied
func (o PrintOptions) Merge(overrides PrintOptions) PrintOptions {
	merged := o
	for _, name := range OptionNames {
		if v := overrides.Get(name); v != nil {
			merged.Set(name, *v)
		}
	}
	return merged
}

// Get returns the named option, or nil if it is unset or unknown
func (o PrintOptions) Get(name string) *bool {
	switch name {
	case "timelapse":
		return o.Timelapse
	case "bed_levelling":
		return o.BedLevelling
	case "flow_cali":
		return o.FlowCali
	case "vibration_cali":
		return o.VibrationCali
	case "layer_inspect":
		return o.LayerInspect
	case "use_ams":
		return o.UseAMS
	}
	return nil
}

// Set assigns the named option. Unknown names are ignored.
func (o *PrintOptions) Set(name string, v bool) {
	switch name {
	case "timelapse":
		o.Timelapse = Bool(v)
	case "bed_levelling":
		o.BedLevelling = Bool(v)
	case "flow_cali":
		o.FlowCali = Bool(v)
	case "vibration_cali":
		o.VibrationCali = Bool(v)
	case "layer_inspect":
		o.LayerInspect = Bool(v)
	case "use_ams":
		o.UseAMS = Bool(v)
	}
}

// Map returns the configured options keyed by their wire names
func (o PrintOptions) Map() map[string]bool {
	m := make(map[string]bool)
	for _, name := range OptionNames {
		if v := o.Get(name); v != nil {
			m[name] = *v
		}
	}
	return m
}
