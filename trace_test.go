package lanesim

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

func TestInactiveTraceManagerRecordsNothing(t *testing.T) {
	tm := CreateTraceManager("off", false)
	tm.AddName(1, "packet-1", "packet")
	AddActionTrace(tm, vrtime.SecondsToTime(1), &ActionTrace{PcktID: 1})
	if tm.NumTraces(1) != 0 || len(tm.NameByID) != 0 {
		t.Fatalf("inactive manager kept %d traces and %d names", tm.NumTraces(1), len(tm.NameByID))
	}
	var missing *TraceManager
	if missing.Active() {
		t.Fatalf("nil manager reports active")
	}
	if err := tm.WriteToFile(filepath.Join(t.TempDir(), "off.yaml"), true); err != nil {
		t.Fatalf("WriteToFile of inactive manager: %v", err)
	}
}

func TestNetworkTracesActions(t *testing.T) {
	net := newRing(t, "traced", 20000, nil)
	id := spawn(t, net, 0, 19000, 0)
	tm := CreateTraceManager("traced", true)
	net.SetTraceManager(tm)

	if err := net.Run(3); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := tm.NumTraces(id); got != 3 {
		t.Fatalf("traces for packet %d = %d, want 3", id, got)
	}
	if tm.NameByID[id].Name != "packet-0" {
		t.Fatalf("name of packet %d = %+v", id, tm.NameByID[id])
	}

	first := tm.Traces[id][0]
	var at ActionTrace
	if err := yaml.Unmarshal([]byte(first.TraceStr), &at); err != nil {
		t.Fatalf("decode trace body: %v", err)
	}
	if at.Tick != 1 || at.Action != "increase" || at.Segment != 1 || at.Offset != 500 {
		t.Fatalf("first record = %+v", at)
	}
	if first.TraceType != "action" || math.Abs(at.Time-net.Params.Period) > 1e-6 {
		t.Fatalf("first record type %q time %v", first.TraceType, at.Time)
	}

	filename := filepath.Join(t.TempDir(), "trace.json")
	if err := tm.WriteToFile(filename, true); err != nil {
		t.Fatalf("WriteToFile: %v", err)
	}
	read, err := ReadTraceManager(filename)
	if err != nil {
		t.Fatalf("ReadTraceManager: %v", err)
	}
	merged := read.Traces[0]
	if len(merged) != 3 || !strings.Contains(merged[2].TraceStr, "tick: 3") {
		t.Fatalf("merged traces = %+v", merged)
	}
	if read.ExpName != "traced" || !read.InUse {
		t.Fatalf("read manager %q in use %v", read.ExpName, read.InUse)
	}
}
