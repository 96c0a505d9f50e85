package driftwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// CaptureOptions configure how the current run's package snapshot is captured
// from the live environment.
type CaptureOptions struct {
	// The command used to invoke the interpreter whose environment ran the
	// tests, e.g. ["python3"] or ["conda", "run", "python"]. Defaults to
	// ["python3"].
	PythonCommand []string

	// Which packages to include in the snapshot.
	Track TrackSpec

	// The packages installed from a nightly wheel index. Their version
	// strings are parsed with [NightlyWheelRule] instead of
	// [StandardVersionRule].
	NightlyPackages []string
}

func (o CaptureOptions) ruleFor(name string) VersionRule {
	for _, nightly := range o.NightlyPackages {
		if NormalizePackageName(nightly) == name {
			return NightlyWheelRule
		}
	}
	return StandardVersionRule
}

func (o CaptureOptions) includes(name string) bool {
	if o.Track.TracksAll() {
		return true
	}
	for _, tracked := range o.Track.Names() {
		if tracked == name {
			return true
		}
	}
	return false
}

// CaptureSnapshot captures the installed package versions by running
// "pip list" through the configured interpreter command. Packages tracked in
// the configuration but not installed are simply absent from the snapshot.
func CaptureSnapshot(ctx context.Context, opts CaptureOptions) (PackageSnapshot, error) {
	command := opts.PythonCommand
	if len(command) == 0 {
		command = []string{"python3"}
	}
	args := append(append([]string{}, command[1:]...), "-m", "pip", "list", "--format=json")
	cmd := exec.CommandContext(ctx, command[0], args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("listing packages via %q failed", strings.Join(command, " ")), err)
	}
	return snapshotFromPipList(out, opts)
}

// snapshotFromPipList parses the json output of "pip list --format=json".
func snapshotFromPipList(out []byte, opts CaptureOptions) (PackageSnapshot, error) {
	var listed []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(out, &listed); err != nil {
		return nil, errors.Join(fmt.Errorf("parsing pip list output failed"), err)
	}

	snapshot := make(PackageSnapshot)
	for _, pkg := range listed {
		name := NormalizePackageName(pkg.Name)
		if name == "" || !opts.includes(name) {
			continue
		}
		parsed := ParseVersion(pkg.Version, opts.ruleFor(name))
		snapshot[name] = PackageVersion{Version: parsed.Version, CommitHash: parsed.CommitHash}
	}
	return snapshot, nil
}

// The on-disk shape of a captured versions file. Package entries are either a
// plain version string or an object with version and git info, both formats
// are produced by older and newer capture steps respectively.
type capturedVersions struct {
	PythonVersion string                     `json:"python_version"`
	Packages      map[string]json.RawMessage `json:"packages"`
}

type capturedPackage struct {
	Version string `json:"version"`
	GitInfo struct {
		GitRevision string `json:"git_revision"`
	} `json:"git_info"`
}

// LoadCapturedSnapshot reads a previously captured versions file, as written
// inside the test environment, and converts it into a snapshot. This is
// preferred over [CaptureSnapshot] when the analysis runs in a different
// environment than the tests did.
func LoadCapturedSnapshot(r io.Reader, opts CaptureOptions) (PackageSnapshot, error) {
	var captured capturedVersions
	if err := json.NewDecoder(r).Decode(&captured); err != nil {
		return nil, errors.Join(fmt.Errorf("parsing captured versions file failed"), err)
	}

	snapshot := make(PackageSnapshot)
	for rawName, rawInfo := range captured.Packages {
		name := NormalizePackageName(rawName)
		if name == "" || !opts.includes(name) {
			continue
		}

		var version PackageVersion
		var asString string
		if err := json.Unmarshal(rawInfo, &asString); err == nil {
			parsed := ParseVersion(asString, opts.ruleFor(name))
			version = PackageVersion{Version: parsed.Version, CommitHash: parsed.CommitHash}
		} else {
			var asObject capturedPackage
			if err := json.Unmarshal(rawInfo, &asObject); err != nil {
				// Unreadable entries are skipped, not fatal
				continue
			}
			version = PackageVersion{Version: asObject.Version, CommitHash: asObject.GitInfo.GitRevision}
			if version.CommitHash == "" {
				version.CommitHash = ParseVersion(asObject.Version, opts.ruleFor(name)).CommitHash
			}
		}
		snapshot[name] = version
	}
	return snapshot, nil
}
