package lanesim

import (
	"encoding/json"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

// TraceInst is one record of a trace, with its time kept as a string
// and its body pre-serialized
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	TraceType string `json:"tracetype" yaml:"tracetype"`
	TraceStr  string `json:"tracestr" yaml:"tracestr"`
}

// NameType is a an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager gathers information about the execution of a simulation,
// in lists of records held per packet id
type TraceManager struct {
	mu sync.Mutex

	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddTrace stores a record under the id of the object it concerns. It may be
// called from several segments at once.
func (tm *TraceManager) AddTrace(vrt vrtime.Time, objID int, trace TraceInst) {
	if !tm.Active() {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.Traces[objID] = append(tm.Traces[objID], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file.
// Packet ids are reused after wrapping around, the latest name wins.
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if !tm.Active() {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
}

// NumTraces returns the number of records held for objID
func (tm *TraceManager) NumTraces(objID int) int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.Traces[objID])
}

// WriteToFile stores the Traces struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
// With globalOrder set all records are merged into one list sorted by time.
func (tm *TraceManager) WriteToFile(filename string, globalOrder bool) error {
	if !tm.Active() {
		return nil
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()

	out := &TraceManager{InUse: tm.InUse, ExpName: tm.ExpName, NameByID: tm.NameByID, Traces: tm.Traces}
	if globalOrder {
		merged := make([]TraceInst, 0)
		ids := make([]int, 0, len(tm.Traces))
		for id := range tm.Traces {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			merged = append(merged, tm.Traces[id]...)
		}
		sort.SliceStable(merged, func(i, j int) bool {
			v1, _ := strconv.ParseFloat(merged[i].TraceTime, 64)
			v2, _ := strconv.ParseFloat(merged[j].TraceTime, 64)
			return v1 < v2
		})
		out.Traces = map[int][]TraceInst{0: merged}
	}

	bytes, err := marshalByExt(filename, out)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// ReadTraceManager deserializes a trace written by WriteToFile
func ReadTraceManager(filename string) (*TraceManager, error) {
	dict, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	tm := CreateTraceManager("", false)
	if useYAMLExt(filename) {
		err = yaml.Unmarshal(dict, tm)
	} else {
		err = json.Unmarshal(dict, tm)
	}
	if err != nil {
		return nil, err
	}
	return tm, nil
}

// ActionTrace records the outcome of one tick for one packet
type ActionTrace struct {
	Tick      int
	Time      float64
	PcktID    int
	Segment   int // number of the segment occupied after the tick
	Offset    int
	Speed     int
	Action    string
	BlockedBy int
	Physical  bool
	Waited    int
}

// Serialize renders the record as yaml
func (at *ActionTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*at)
	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// AddActionTrace creates a record of the trace using its calling arguments, and stores it
func AddActionTrace(tm *TraceManager, vrt vrtime.Time, at *ActionTrace) {
	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)
	trcInst := TraceInst{TraceTime: traceTime, TraceType: "action", TraceStr: at.Serialize()}
	tm.AddTrace(vrt, at.PcktID, trcInst)
}
