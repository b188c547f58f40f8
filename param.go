package lanesim

// param.go holds the numerical constants that govern the speed model,
// the right-of-way rules and gridlock detection, together with the
// methods that read, write, and modify them

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaults carried over from the first version of the model
const (
	defaultNominalSpeed      = 14000
	defaultVehicleLength     = 4000
	defaultBrakeDecel        = 3500
	defaultSpeedupAccel      = 1500
	defaultYieldFactor       = 3
	defaultGridlockThreshold = 5
	defaultYieldDepth        = 2
	defaultRouteLookahead    = 5
	defaultLengthScale       = 1000.0
	defaultPeriod            = 0.1
	defaultMaxPacketID       = 1 << 30
)

// SimParams gathers the tunable constants of a simulation. The right-of-way
// factor and depth and the gridlock threshold are empirical, exposed here so they can
// be overridden rather than derived.
type SimParams struct {
	// speed used for the right-of-way window and as the center of
	// randomly drawn preferred speeds
	NominalSpeed int `json:"nominalspeed" yaml:"nominalspeed"`

	// minimum distance between the fronts of two packets on one segment
	VehicleLength int `json:"vehiclelength" yaml:"vehiclelength"`

	// speed lost per tick when braking
	BrakeDecel int `json:"brakedecel" yaml:"brakedecel"`

	// speed gained per tick when accelerating
	SpeedupAccel int `json:"speedupaccel" yaml:"speedupaccel"`

	// packets on an interfering segment closer than YieldFactor*NominalSpeed
	// behind the requester's crossing position are given right of way
	YieldFactor int `json:"yieldfactor" yaml:"yieldfactor"`

	// packets behind the requester's crossing position checked for
	// right of way on each interfering segment
	YieldDepth int `json:"yielddepth" yaml:"yielddepth"`

	// ticks a stalled packet waits in one action before a wait-for
	// chain walk is started
	GridlockThreshold int `json:"gridlockthreshold" yaml:"gridlockthreshold"`

	// number of segments (including the current one) held in a route
	RouteLookahead int `json:"routelookahead" yaml:"routelookahead"`

	// converts description coordinates into segment length units
	LengthScale float64 `json:"lengthscale" yaml:"lengthscale"`

	// simulated seconds between ticks when driven by a TickRunner
	Period float64 `json:"period" yaml:"period"`

	// packet ids wrap around to 0 after reaching this value
	MaxPacketID int `json:"maxpacketid" yaml:"maxpacketid"`

	// participants of a phase run concurrently when larger than 1
	Workers int `json:"workers" yaml:"workers"`

	// record per-packet action traces
	Trace bool `json:"trace" yaml:"trace"`
}

// DefaultSimParams returns the parameter set used when nothing is configured
func DefaultSimParams() SimParams {
	return SimParams{
		NominalSpeed:      defaultNominalSpeed,
		VehicleLength:     defaultVehicleLength,
		BrakeDecel:        defaultBrakeDecel,
		SpeedupAccel:      defaultSpeedupAccel,
		YieldFactor:       defaultYieldFactor,
		YieldDepth:        defaultYieldDepth,
		GridlockThreshold: defaultGridlockThreshold,
		RouteLookahead:    defaultRouteLookahead,
		LengthScale:       defaultLengthScale,
		Period:            defaultPeriod,
		MaxPacketID:       defaultMaxPacketID,
		Workers:           1,
	}
}

// Validate reports every parameter holding a value the model cannot use
func (sp *SimParams) Validate() error {
	errs := []error{}
	positive := map[string]int{
		"nominalspeed":      sp.NominalSpeed,
		"vehiclelength":     sp.VehicleLength,
		"brakedecel":        sp.BrakeDecel,
		"speedupaccel":      sp.SpeedupAccel,
		"yieldfactor":       sp.YieldFactor,
		"yielddepth":        sp.YieldDepth,
		"gridlockthreshold": sp.GridlockThreshold,
		"maxpacketid":       sp.MaxPacketID,
		"workers":           sp.Workers,
	}
	for _, name := range paramNames {
		value, present := positive[name]
		if present && !(value > 0) {
			errs = append(errs, fmt.Errorf("%w: %s must be positive, is %d", ErrBadParam, name, value))
		}
	}

	// the route holds the current segment, so at least one more is needed to move on
	if sp.RouteLookahead < 2 {
		errs = append(errs, fmt.Errorf("%w: routelookahead must be at least 2, is %d", ErrBadParam, sp.RouteLookahead))
	}
	if !(sp.LengthScale > 0.0) {
		errs = append(errs, fmt.Errorf("%w: lengthscale must be positive", ErrBadParam))
	}
	if !(sp.Period > 0.0) {
		errs = append(errs, fmt.Errorf("%w: period must be positive", ErrBadParam))
	}
	return ReportErrs(errs)
}

// paramNames lists the names SetParam recognizes, in a fixed order
var paramNames = []string{"nominalspeed", "vehiclelength", "brakedecel", "speedupaccel",
	"yieldfactor", "yielddepth", "gridlockthreshold", "routelookahead", "lengthscale", "period",
	"maxpacketid", "workers", "trace"}

// A valueStruct holds the interpretations of a string-encoded value,
// which one is used is known from the parameter it is assigned to
type valueStruct struct {
	intValue    int
	floatValue  float64
	stringValue string
	boolValue   bool
}

// parseValue fills in every interpretation of the string that parses
func parseValue(value string) valueStruct {
	vs := valueStruct{stringValue: value}
	if v, err := strconv.Atoi(value); err == nil {
		vs.intValue = v
		vs.floatValue = float64(v)
	} else if v, err := strconv.ParseFloat(value, 64); err == nil {
		vs.floatValue = v
		vs.intValue = int(v)
	}
	if v, err := strconv.ParseBool(value); err == nil {
		vs.boolValue = v
	}
	return vs
}

// SetParam assigns a string-encoded value to the parameter with the given
// (case insensitive) name
func (sp *SimParams) SetParam(param, value string) error {
	param = strings.ToLower(strings.TrimSpace(param))
	vs := parseValue(strings.TrimSpace(value))

	switch param {
	case "nominalspeed":
		sp.NominalSpeed = vs.intValue
	case "vehiclelength":
		sp.VehicleLength = vs.intValue
	case "brakedecel":
		sp.BrakeDecel = vs.intValue
	case "speedupaccel":
		sp.SpeedupAccel = vs.intValue
	case "yieldfactor":
		sp.YieldFactor = vs.intValue
	case "yielddepth":
		sp.YieldDepth = vs.intValue
	case "gridlockthreshold":
		sp.GridlockThreshold = vs.intValue
	case "routelookahead":
		sp.RouteLookahead = vs.intValue
	case "lengthscale":
		sp.LengthScale = vs.floatValue
	case "period":
		sp.Period = vs.floatValue
	case "maxpacketid":
		sp.MaxPacketID = vs.intValue
	case "workers":
		sp.Workers = vs.intValue
	case "trace":
		sp.Trace = vs.boolValue
	default:
		return fmt.Errorf("%w: unknown parameter %q", ErrBadParam, param)
	}
	return nil
}

// ApplySettings applies a list of "name=value" strings in order
func (sp *SimParams) ApplySettings(settings []string) error {
	errs := []error{}
	for _, setting := range settings {
		name, value, found := strings.Cut(setting, "=")
		if !found {
			errs = append(errs, fmt.Errorf("%w: setting %q is not of the form name=value", ErrBadParam, setting))
			continue
		}
		if err := sp.SetParam(name, value); err != nil {
			errs = append(errs, err)
		}
	}
	return ReportErrs(errs)
}

// WriteToFile stores the SimParams struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (sp *SimParams) WriteToFile(filename string) error {
	bytes, err := marshalByExt(filename, *sp)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// ReadSimParams deserializes a byte slice holding a representation of a SimParams struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them. Fields missing from the representation keep their default values.
func ReadSimParams(filename string, useYAML bool, dict []byte) (*SimParams, error) {
	var err error

	// if the dict slice of bytes is empty we get them from the file whose name is an argument
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	sp := DefaultSimParams()
	if useYAML {
		err = yaml.Unmarshal(dict, &sp)
	} else {
		err = json.Unmarshal(dict, &sp)
	}
	if err != nil {
		return nil, fmt.Errorf("parameters %s: %w", filename, err)
	}
	return &sp, nil
}

// useYAMLExt says whether the extension of filename selects yaml
func useYAMLExt(filename string) bool {
	ext := strings.ToLower(path.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// marshalByExt serializes obj to yaml or json, chosen by the file extension
func marshalByExt(filename string, obj any) ([]byte, error) {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Marshal(obj)
	case ".json":
		return json.MarshalIndent(obj, "", "\t")
	}
	return nil, fmt.Errorf("%s: extension must be one of .yaml, .yml, .json", filename)
}
