package zclone

import (
	"regexp"
	"strings"
)

var (
	digestRecordRe   = regexp.MustCompile(`^\s*portable_mac = (0x[0-9a-f]{2} ?)+$`)
	checksumRecordRe = regexp.MustCompile(`^END checksum = [0-9a-f]+/[0-9a-f]+/[0-9a-f]+/[0-9a-f]+$`)
)

// Lines printed by the dump stage for one send stream
type Summary []string

// Portable MAC records of a stream summary, in stream order.
// A line announcing a MAC that does not have the expected shape is an error.
func ExtractDigests(summary Summary) ([]string, error) {
	var digests []string
	for _, line := range summary {
		line = strings.TrimRight(line, " \t")
		if digestRecordRe.MatchString(line) {
			digests = append(digests, line)
		} else if strings.HasPrefix(strings.TrimSpace(line), "portable_mac") {
			return nil, &ParseError{What: "digest record", Input: line}
		}
	}
	return digests, nil
}

// END records checksums of a stream summary, in stream order
func ExtractChecksums(summary Summary) []string {
	var checksums []string
	for _, line := range summary {
		line = strings.TrimSpace(line)
		if checksumRecordRe.MatchString(line) {
			checksums = append(checksums, line)
		}
	}
	return checksums
}

func DigestsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
