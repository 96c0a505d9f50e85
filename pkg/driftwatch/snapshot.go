package driftwatch

import (
	"sort"
	"strings"
)

// A PackageVersion is the version of one installed package, together with the
// commit hash extracted from its version string, if any.
type PackageVersion struct {
	Version    string `json:"version"`
	CommitHash string `json:"commitHash,omitempty"`
}

// A PackageSnapshot maps normalized package names to the versions that were
// installed during one CI run. Snapshots are captured once per run and never
// mutated afterwards.
type PackageSnapshot map[string]PackageVersion

// NewPackageSnapshot builds a snapshot from the passed versions, normalizing
// all package names.
func NewPackageSnapshot(versions map[string]PackageVersion) PackageSnapshot {
	snapshot := make(PackageSnapshot, len(versions))
	for name, version := range versions {
		snapshot[NormalizePackageName(name)] = version
	}
	return snapshot
}

// NormalizePackageName lower-cases the passed package name and folds
// underscores and dots into hyphens, following the pip distribution name
// normalization rules.
func NormalizePackageName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "-")
	name = strings.ReplaceAll(name, ".", "-")
	return name
}

// A TrackSpec determines which packages are included in version-diff analysis.
// It either tracks an explicit list of packages or all packages present in
// either snapshot.
type TrackSpec struct {
	all   bool
	names []string
}

// TrackAll returns a spec tracking every package present in either snapshot.
func TrackAll() TrackSpec {
	return TrackSpec{all: true}
}

// TrackList returns a spec tracking exactly the passed packages. Names are
// normalized, deduplicated and sorted.
func TrackList(names ...string) TrackSpec {
	seen := make(map[string]bool, len(names))
	normalized := make([]string, 0, len(names))
	for _, name := range names {
		name = NormalizePackageName(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		normalized = append(normalized, name)
	}
	sort.Strings(normalized)
	return TrackSpec{names: normalized}
}

// TracksAll reports whether this spec tracks all packages.
func (t TrackSpec) TracksAll() bool {
	return t.all
}

// Names returns the tracked package names, or nil if all packages are tracked.
func (t TrackSpec) Names() []string {
	return t.names
}

func (t TrackSpec) String() string {
	if t.all {
		return "all"
	}
	return strings.Join(t.names, ",")
}

// A VersionChange is one package's version difference between two snapshots.
// An empty From means the package was newly introduced, an empty To means it
// was removed.
type VersionChange struct {
	Package string

	From string
	To   string

	FromHash string
	ToHash   string
}

// A CommitRange is the pair of commit hashes bounding one package's regression
// window, where both endpoint version strings exposed a hash.
type CommitRange struct {
	From string
	To   string
}

// Diff returns the version changes between the old and the new snapshot for
// all packages included by the passed spec, ordered alphabetically by package
// name. Packages whose version and commit hash are identical in both
// snapshots are excluded. A tracked package absent from both snapshots is
// excluded as well.
func Diff(old, new PackageSnapshot, spec TrackSpec) []VersionChange {
	var names []string
	if spec.TracksAll() {
		seen := make(map[string]bool, len(old)+len(new))
		for name := range old {
			seen[name] = true
			names = append(names, name)
		}
		for name := range new {
			if !seen[name] {
				names = append(names, name)
			}
		}
		sort.Strings(names)
	} else {
		names = spec.Names()
	}

	var changes []VersionChange
	for _, name := range names {
		before, hasBefore := old[name]
		after, hasAfter := new[name]
		if !hasBefore && !hasAfter {
			continue
		}
		if hasBefore && hasAfter && before == after {
			continue
		}
		changes = append(changes, VersionChange{
			Package:  name,
			From:     before.Version,
			To:       after.Version,
			FromHash: before.CommitHash,
			ToHash:   after.CommitHash,
		})
	}
	return changes
}
