/*
Package driftwatch provides a Go interface for explaining CI test regressions.

Given the record of a failing CI run and an append-only history of earlier runs,
the engine finds, for every failing test, the most recent run in which that test
still passed and reports what changed in between: package version bumps, the git
commit range embedded in the version strings of nightly builds, and the commits
of the repository under test itself.

Engines can most easily be created by passing a yaml config to
[GetEngineFromConfig], but can also be created manually by populating an
[Engine] struct. For a manually created engine to work, at least the following
fields have to be populated:
  - Store
  - Track

After an engine was acquired, one CI run is analyzed using [Engine.Analyze],
which returns the rendered Markdown report and appends the current run's record
to the store. [Engine.Report] performs the same analysis without the append.

The engine never bisects by checking out commits. It only reports the two
endpoints bounding the regression window, leaving the actual search to tools
built for it.
*/
package driftwatch
