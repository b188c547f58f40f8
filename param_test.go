package lanesim

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestDefaultParamsAreValid(t *testing.T) {
	sp := DefaultSimParams()
	if err := sp.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	sp := DefaultSimParams()
	sp.VehicleLength = 0
	sp.RouteLookahead = 1
	sp.Period = 0

	err := sp.Validate()
	if !errors.Is(err, ErrBadParam) {
		t.Fatalf("Validate error = %v, want ErrBadParam", err)
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok || len(joined.Unwrap()) != 3 {
		t.Fatalf("Validate error = %v, want three problems", err)
	}
}

func TestApplySettings(t *testing.T) {
	sp := DefaultSimParams()
	err := sp.ApplySettings([]string{"NominalSpeed=20000", " period = 0.25", "trace=true", "workers=4"})
	if err != nil {
		t.Fatalf("ApplySettings: %v", err)
	}
	if sp.NominalSpeed != 20000 || sp.Period != 0.25 || !sp.Trace || sp.Workers != 4 {
		t.Fatalf("settings not applied: %+v", sp)
	}

	err = sp.ApplySettings([]string{"nosuch=1", "brakedecel"})
	if !errors.Is(err, ErrBadParam) {
		t.Fatalf("ApplySettings error = %v, want ErrBadParam", err)
	}
}

func TestParamsFileRoundTrip(t *testing.T) {
	for _, ext := range []string{".yaml", ".json"} {
		t.Run(ext, func(t *testing.T) {
			sp := DefaultSimParams()
			sp.YieldFactor = 5
			sp.GridlockThreshold = 8
			filename := filepath.Join(t.TempDir(), "params"+ext)
			if err := sp.WriteToFile(filename); err != nil {
				t.Fatalf("WriteToFile: %v", err)
			}
			read, err := ReadSimParams(filename, ext == ".yaml", nil)
			if err != nil {
				t.Fatalf("ReadSimParams: %v", err)
			}
			if *read != sp {
				t.Fatalf("read %+v, want %+v", *read, sp)
			}
		})
	}
}

func TestPartialParamsKeepDefaults(t *testing.T) {
	read, err := ReadSimParams("inline", true, []byte("brakedecel: 5000\n"))
	if err != nil {
		t.Fatalf("ReadSimParams: %v", err)
	}
	want := DefaultSimParams()
	want.BrakeDecel = 5000
	if *read != want {
		t.Fatalf("read %+v, want %+v", *read, want)
	}
}

func TestWriteRejectsUnknownExtension(t *testing.T) {
	sp := DefaultSimParams()
	if err := sp.WriteToFile(filepath.Join(t.TempDir(), "params.txt")); err == nil {
		t.Fatalf("WriteToFile accepted a .txt file")
	}
}
