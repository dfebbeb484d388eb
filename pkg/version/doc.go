// Package version parses and compares RPM epoch:version-release strings.
//
// Ordering follows rpmvercmp: versions are split into alternating numeric and
// alphabetic segments, numeric segments compare as integers and always sort
// after alphabetic ones, a tilde sorts before everything (pre-releases) and a
// caret sorts after the base version but before any further segment.
//
//	version.Compare("1.0~rc1", "1.0")   // -1
//	version.Compare("1.0^git1", "1.0")  // 1
//	version.Compare("2:1.0", "1:9.9")   // 1 (epoch wins)
//
// Constraint implements the comparisons used by recipe guards such as
// "0%{?suse_version} >= 1500".
package version
