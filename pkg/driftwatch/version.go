package driftwatch

import (
	"regexp"
	"strings"
)

// A VersionRule selects the strategy used to extract a git commit hash from a
// raw version string.
type VersionRule int

const (
	// StandardVersionRule extracts hashes from setuptools-scm style local
	// version segments, e.g. "2.1.0.dev0+123.gabc123d" or "1.5.0+gdef456a789".
	StandardVersionRule VersionRule = iota
	// NightlyWheelRule extracts hashes from nightly wheel version strings,
	// which embed date and hash segments positionally instead of using the
	// "g" marker, e.g. "2.1.0.dev0+20240115.9f3a1c2b". Whether a package came
	// from a nightly index cannot be inferred from the string alone, so this
	// rule has to be selected by the caller. Nightly wheels that do use the
	// "g" marker are still recognized, as this rule falls back to
	// [StandardVersionRule] if no positional hash is found.
	NightlyWheelRule
)

// A ParsedVersion is the result of extracting a commit hash from a raw version
// string. Parsing never fails, unparseable input yields an empty CommitHash.
type ParsedVersion struct {
	Version    string // The version string, unchanged
	CommitHash string // The embedded git commit hash, or empty if none was found
}

var (
	// The canonical local version segment position, anchored to a separator on
	// both sides so that build counters and package names starting with "g"
	// don't produce false positives.
	localSegmentGit = regexp.MustCompile(`(?i)(?:^|[.+])g([0-9a-f]{7,40})(?:$|[.+])`)

	dotGit  = regexp.MustCompile(`(?i)\.g([0-9a-f]{7,40})\b`)
	plusGit = regexp.MustCompile(`(?i)\+g([0-9a-f]{7,40})\b`)
	bareGit = regexp.MustCompile(`(?i)\bg([0-9a-f]{7,40})\b`)

	hexSegment = regexp.MustCompile(`(?i)^[0-9a-f]{7,40}$`)
	dateDigits = regexp.MustCompile(`^[0-9]{8}$`)
)

// ParseVersion extracts the git commit hash embedded in a raw version string
// using the passed rule. Hashes must be at least 7 hex characters long to
// avoid false positives on numeric build tags.
func ParseVersion(raw string, rule VersionRule) ParsedVersion {
	parsed := ParsedVersion{Version: raw}
	if raw == "" {
		return parsed
	}

	if rule == NightlyWheelRule {
		if hash := nightlyHash(raw); hash != "" {
			parsed.CommitHash = hash
			return parsed
		}
	}
	parsed.CommitHash = standardHash(raw)
	return parsed
}

// standardHash extracts a "g"-marked hash, preferring the canonical local
// version position after the last "+" over earlier lookalike substrings.
func standardHash(raw string) string {
	if plus := strings.LastIndex(raw, "+"); plus >= 0 {
		if match := localSegmentGit.FindStringSubmatch(raw[plus:]); match != nil {
			return match[1]
		}
	}
	for _, pattern := range []*regexp.Regexp{dotGit, plusGit, bareGit} {
		if match := pattern.FindStringSubmatch(raw); match != nil {
			return match[1]
		}
	}
	return ""
}

// nightlyHash extracts a positional hash from the local version segment of a
// nightly wheel version string. The segments after the last "+" are scanned
// back to front for a plain hex segment, skipping date segments.
func nightlyHash(raw string) string {
	plus := strings.LastIndex(raw, "+")
	if plus < 0 {
		return ""
	}
	segments := strings.Split(raw[plus+1:], ".")
	for i := len(segments) - 1; i >= 0; i-- {
		segment := strings.TrimPrefix(strings.ToLower(segments[i]), "git")
		if dateDigits.MatchString(segment) {
			continue
		}
		if hexSegment.MatchString(segment) {
			return segment
		}
	}
	return ""
}
