package driftwatch

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// A BisectionResult is the outcome of bisecting one failing test against the
// run history. A nil LastPass means no prior passing run was found.
type BisectionResult struct {
	TestID string

	LastPass *RunRecord // The most recent run in which the test passed, or nil

	Changes      []VersionChange            // The tracked package changes since the last pass, ordered by package name
	CommitRanges map[string]CommitRange     // Per package, the commit range bounding the regression window
	Commits      map[string][]CommitSummary // Per package, the commits of the range, oldest first
}

// NoPriorPass reports whether no prior passing run was found for this test.
func (r BisectionResult) NoPriorPass() bool {
	return r.LastPass == nil
}

// A ReportBudget bounds the size of the rendered report. Rendering never
// fails, oversized content is truncated deterministically instead.
type ReportBudget struct {
	SectionLimit int // The maximum characters per test section, or 0 for [DefaultSectionLimit]
	ReportLimit  int // The maximum characters for the whole report, or 0 for [DefaultReportLimit]
}

const (
	DefaultSectionLimit = 4000

	// Kept below the 65536 character limit of GitHub issue bodies to leave
	// room for the surrounding issue content.
	DefaultReportLimit = 60000
)

// How long one-line commit descriptions may get before being cut off.
const subjectLimit = 60

// The GitHub repositories of well-known packages, used to render compare
// links for version changes.
var packageRepos = map[string]string{
	"numpy":        "numpy/numpy",
	"pandas":       "pandas-dev/pandas",
	"matplotlib":   "matplotlib/matplotlib",
	"scipy":        "scipy/scipy",
	"scikit-learn": "scikit-learn/scikit-learn",
	"xarray":       "pydata/xarray",
	"dask":         "dask/dask",
	"zarr":         "zarr-developers/zarr-python",
	"requests":     "psf/requests",
	"django":       "django/django",
	"flask":        "pallets/flask",
	"pytest":       "pytest-dev/pytest",
	"hypothesis":   "HypothesisWorks/hypothesis",
	"tensorflow":   "tensorflow/tensorflow",
	"torch":        "pytorch/pytorch",
	"fastapi":      "tiangolo/fastapi",
	"pydantic":     "pydantic/pydantic",
	"sqlalchemy":   "sqlalchemy/sqlalchemy",
	"black":        "psf/black",
	"mypy":         "python/mypy",
	"ruff":         "astral-sh/ruff",
}

// RenderReport renders one Markdown section per bisection result, in the
// order the results are passed. If the combined report exceeds the report
// budget, sections without a prior passing run are collapsed into a terse
// list first, then the remaining sections are re-rendered with a tighter
// per-section budget, and only as a last resort is the report cut off.
func RenderReport(current RunRecord, results []BisectionResult, budget ReportBudget) string {
	sectionLimit := budget.SectionLimit
	if sectionLimit <= 0 {
		sectionLimit = DefaultSectionLimit
	}
	reportLimit := budget.ReportLimit
	if reportLimit <= 0 {
		reportLimit = DefaultReportLimit
	}

	var sections []string
	for _, result := range results {
		sections = append(sections, renderSection(result, current, sectionLimit))
	}
	report := strings.Join(sections, "\n")
	if len(report) <= reportLimit {
		return report
	}

	// Collapse the lowest-priority sections, the ones with nothing to bisect.
	var noPrior []string
	sections = sections[:0]
	for _, result := range results {
		if result.NoPriorPass() {
			noPrior = append(noPrior, result.TestID)
			continue
		}
		sections = append(sections, renderSection(result, current, sectionLimit))
	}
	if len(noPrior) > 0 {
		var builder strings.Builder
		builder.WriteString("## Tests without a prior passing run\n\n")
		for _, testID := range noPrior {
			fmt.Fprintf(&builder, "- %s\n", testID)
		}
		sections = append(sections, builder.String())
	}
	report = strings.Join(sections, "\n")
	if len(report) <= reportLimit {
		return report
	}

	// Tighten the per-section budget to an even share of the report budget.
	if len(sections) > 0 {
		share := reportLimit/len(sections) - 1
		if share > 0 && share < sectionLimit {
			var tightened []string
			for _, result := range results {
				if result.NoPriorPass() {
					continue
				}
				tightened = append(tightened, renderSection(result, current, share))
			}
			if len(noPrior) > 0 {
				tightened = append(tightened, truncateAt(sections[len(sections)-1], share))
			}
			sections = tightened
		}
	}
	report = strings.Join(sections, "\n")

	return truncateAt(report, reportLimit)
}

// renderSection renders one test's section, shrinking the commit lists until
// the section fits into the limit.
func renderSection(result BisectionResult, current RunRecord, limit int) string {
	if result.NoPriorPass() {
		return fmt.Sprintf("## %s\n\nNo prior successful run found for this test.\n", result.TestID)
	}

	section := renderWindowSection(result, current, -1)
	if limit <= 0 || len(section) <= limit {
		return section
	}

	commitCap := 0
	for _, commits := range result.Commits {
		if len(commits) > commitCap {
			commitCap = len(commits)
		}
	}
	for commitCap > 0 {
		commitCap /= 2
		section = renderWindowSection(result, current, commitCap)
		if len(section) <= limit {
			return section
		}
	}
	return truncateAt(section, limit)
}

func renderWindowSection(result BisectionResult, current RunRecord, commitCap int) string {
	lastPass := result.LastPass

	var builder strings.Builder
	fmt.Fprintf(&builder, "## %s\n\n", result.TestID)

	builder.WriteString("### Package changes since last pass\n")
	if len(result.Changes) == 0 {
		builder.WriteString("- No tracked dependency changed since the last pass, the regression is likely caused by code or environment changes\n")
	} else {
		for _, change := range result.Changes {
			builder.WriteString(changeLine(change))
			builder.WriteByte('\n')
		}
	}

	if len(result.Commits) > 0 {
		builder.WriteString("\n### Commits since last pass\n")
		packages := make([]string, 0, len(result.Commits))
		for name := range result.Commits {
			packages = append(packages, name)
		}
		sort.Strings(packages)
		for _, name := range packages {
			commitRange := result.CommitRanges[name]
			fmt.Fprintf(&builder, "**%s** (%s → %s):\n", name, shortHash(commitRange.From), shortHash(commitRange.To))

			commits := result.Commits[name]
			shown, omitted := commits, 0
			if commitCap >= 0 && len(commits) > commitCap {
				shown, omitted = commits[:commitCap], len(commits)-commitCap
			}
			for _, commit := range shown {
				fmt.Fprintf(&builder, "- %s %s\n", shortHash(commit.Hash), truncateSubject(commit.Subject))
			}
			if omitted > 0 {
				fmt.Fprintf(&builder, "- … %d more commits omitted\n", omitted)
			}
		}
	}

	if current.Head.Hash != "" || lastPass.Head.Hash != "" {
		builder.WriteString("\n### Code changes since last pass\n")
		if current.Head.Hash == lastPass.Head.Hash {
			builder.WriteString("- No code changes detected\n")
		} else {
			fmt.Fprintf(&builder, "- %s (%s) → %s (%s)\n",
				lastPass.Head.Short(), truncateSubject(lastPass.Head.Subject),
				current.Head.Short(), truncateSubject(current.Head.Subject))
		}
	}

	fmt.Fprintf(&builder, "\nLast passed in run #%s on %s\n", lastPass.RunID, lastPass.Timestamp.UTC().Format(time.RFC3339))
	return builder.String()
}

// changeLine renders one package change as a Markdown list entry, linking to
// the GitHub compare view for known packages.
func changeLine(change VersionChange) string {
	switch {
	case change.From == "":
		return fmt.Sprintf("- %s: (new) → %s", change.Package, displayVersion(change.To, change.ToHash))
	case change.To == "":
		return fmt.Sprintf("- %s: %s → (removed)", change.Package, displayVersion(change.From, change.FromHash))
	}

	text := fmt.Sprintf("%s: %s → %s", change.Package, displayVersion(change.From, change.FromHash), displayVersion(change.To, change.ToHash))
	if change.From == change.To {
		// Same release, different build. Happens with nightly wheels.
		return fmt.Sprintf("- %s (git revision changed)", text)
	}
	if repo, ok := packageRepos[change.Package]; ok {
		return fmt.Sprintf("- [%s](https://github.com/%s/compare/v%s...v%s)", text, repo, change.From, change.To)
	}
	return "- " + text
}

func displayVersion(version, hash string) string {
	if version == "" {
		return "(missing)"
	}
	if hash != "" {
		return fmt.Sprintf("%s (%s)", version, shortHash(hash))
	}
	return version
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

func truncateSubject(subject string) string {
	if len(subject) > subjectLimit {
		return subject[:subjectLimit] + "..."
	}
	return subject
}

func truncateAt(s string, limit int) string {
	const marker = "\n… (truncated)\n"
	if len(s) <= limit {
		return s
	}
	if limit <= len(marker) {
		return s[:limit]
	}
	return s[:limit-len(marker)] + marker
}
