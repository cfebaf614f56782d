package pipeline

import (
	"regexp"
	"strconv"
	"strings"
)

// TestCounts holds pass/fail counts parsed from raw test output.
type TestCounts struct {
	Passed    int    `json:"passed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Framework string `json:"framework"`
}

// ParseTestResults extracts test counts from raw tool output. The
// framework is auto-detected (go test, jest, pytest); unrecognized
// output falls back to a keyword heuristic and, failing that, zero
// counts. Parsing never fails.
func ParseTestResults(output string) TestCounts {
	switch {
	case isGoTestOutput(output):
		return parseGoTest(output)
	case isJestOutput(output):
		return parseJest(output)
	case isPytestOutput(output):
		return parsePytest(output)
	default:
		return parseGeneric(output)
	}
}

func isGoTestOutput(output string) bool {
	return strings.Contains(output, "--- FAIL:") ||
		strings.Contains(output, "--- PASS:") ||
		strings.Contains(output, "=== RUN") ||
		strings.Contains(output, "PASS") && strings.Contains(output, "ok  \t") ||
		strings.Contains(output, "FAIL") && strings.Contains(output, "FAIL\t")
}

func isJestOutput(output string) bool {
	return strings.Contains(output, "PASS ") && strings.Contains(output, ".test.") ||
		strings.Contains(output, "FAIL ") && strings.Contains(output, ".test.") ||
		strings.Contains(output, "Test Suites:") ||
		strings.Contains(output, "Tests:")
}

func isPytestOutput(output string) bool {
	return strings.Contains(output, "pytest") ||
		strings.Contains(output, "===") && strings.Contains(output, "passed") ||
		strings.Contains(output, "PASSED") && strings.Contains(output, "::") ||
		strings.Contains(output, "FAILED") && strings.Contains(output, "::")
}

var (
	goPassPattern    = regexp.MustCompile(`^--- PASS: \S+`)
	goFailPattern    = regexp.MustCompile(`^--- FAIL: \S+`)
	goSkipPattern    = regexp.MustCompile(`^--- SKIP: \S+`)
	goPkgOKPattern   = regexp.MustCompile(`^ok\s+\S+`)
	goPkgFailPattern = regexp.MustCompile(`^FAIL\s+\S+`)
)

// parseGoTest counts verbose per-test lines; without -v output it falls
// back to counting per-package ok/FAIL lines.
func parseGoTest(output string) TestCounts {
	counts := TestCounts{Framework: "go"}
	var pkgOK, pkgFail int

	for _, line := range strings.Split(output, "\n") {
		switch {
		case goPassPattern.MatchString(line):
			counts.Passed++
		case goFailPattern.MatchString(line):
			counts.Failed++
		case goSkipPattern.MatchString(line):
			counts.Skipped++
		case goPkgOKPattern.MatchString(line):
			pkgOK++
		case goPkgFailPattern.MatchString(line):
			pkgFail++
		}
	}

	if counts.Passed == 0 && counts.Failed == 0 && counts.Skipped == 0 {
		counts.Passed = pkgOK
		counts.Failed = pkgFail
	}
	return counts
}

var jestSummaryPattern = regexp.MustCompile(`Tests:\s+(?:(\d+) failed,?\s*)?(?:(\d+) skipped,?\s*)?(?:(\d+) passed,?\s*)?(\d+) total`)

func parseJest(output string) TestCounts {
	counts := TestCounts{Framework: "jest"}
	if matches := jestSummaryPattern.FindStringSubmatch(output); matches != nil {
		counts.Failed, _ = strconv.Atoi(matches[1])
		counts.Skipped, _ = strconv.Atoi(matches[2])
		counts.Passed, _ = strconv.Atoi(matches[3])
	}
	return counts
}

var pytestSummaryPattern = regexp.MustCompile(`(\d+) passed|(\d+) failed|(\d+) skipped|(\d+) error`)

func parsePytest(output string) TestCounts {
	counts := TestCounts{Framework: "pytest"}
	for _, match := range pytestSummaryPattern.FindAllStringSubmatch(output, -1) {
		switch {
		case match[1] != "":
			counts.Passed, _ = strconv.Atoi(match[1])
		case match[2] != "":
			counts.Failed, _ = strconv.Atoi(match[2])
		case match[3] != "":
			counts.Skipped, _ = strconv.Atoi(match[3])
		case match[4] != "":
			// Collection errors count as failures.
			n, _ := strconv.Atoi(match[4])
			counts.Failed += n
		}
	}
	return counts
}

// parseGeneric handles unknown frameworks with a keyword heuristic.
// Output with no recognizable signal yields zero counts.
func parseGeneric(output string) TestCounts {
	counts := TestCounts{Framework: "unknown"}
	lower := strings.ToLower(output)

	switch {
	case strings.Contains(lower, "fail") || strings.Contains(lower, "error"):
		counts.Failed = 1
	case strings.Contains(lower, "pass") || strings.Contains(lower, "ok"):
		counts.Passed = 1
	}
	return counts
}
