package lanesim

import (
	"errors"
	"os"
	"path/filepath"
)

var (
	// ErrDeadEnd reports a segment packets can reach but never leave
	ErrDeadEnd = errors.New("segment has no successor")

	// ErrRouteExhausted reports a packet asked to leave a segment with no continuation on its route
	ErrRouteExhausted = errors.New("route exhausted")

	// ErrNoRoom reports a packet placed closer than one vehicle length to another
	ErrNoRoom = errors.New("no room for packet")

	// ErrUnknownSegment reports a reference to a segment index or number that does not exist
	ErrUnknownSegment = errors.New("unknown segment")

	// ErrInTick reports an attempt to change the network while a tick is running
	ErrInTick = errors.New("operation not allowed during a tick")

	// ErrBadParam reports a parameter with an unusable value
	ErrBadParam = errors.New("bad parameter")

	// ErrNoIDs reports that every packet id is in use
	ErrNoIDs = errors.New("packet ids exhausted")
)

// ReportErrs gathers the non-nil errors of a list into a single error, nil when
// there are none. The constituents remain visible to errors.Is and errors.As.
func ReportErrs(errs []error) error {
	kept := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return errors.Join(kept...)
}

// CheckReadableFiles probes the file system to ensure that every
// one of the argument filenames exists and is readable
func CheckReadableFiles(names []string) (bool, error) {
	return CheckFiles(names, true)
}

// CheckOutputFiles probes the file system to ensure that every
// argument filename can be written.
func CheckOutputFiles(names []string) (bool, error) {
	return CheckFiles(names, false)
}

// CheckFiles probes the file system for permitted access to all the
// argument filenames, optionally checking also for the existence
// of those files for the purposes of reading them.
func CheckFiles(names []string, checkExistence bool) (bool, error) {
	errs := make([]error, 0)

	for _, name := range names {
		// empty names stand for outputs that are not wanted
		if len(name) == 0 {
			continue
		}

		directory, _ := filepath.Split(name)
		if len(directory) == 0 {
			directory = "."
		}
		if _, err := os.Stat(directory); err != nil {
			errs = append(errs, err)
			continue
		}
		if checkExistence {
			if _, err := os.Stat(name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	err := ReportErrs(errs)
	return err == nil, err
}
