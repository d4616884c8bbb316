package zclone

import (
	"errors"
	"reflect"
	"testing"
)

var dumpOutput = Summary{
	"BEGIN record",
	"	hdrtype = 2",
	"	features = 4",
	"	magic = 2f5bacbac",
	"	creation_time = 0",
	"	type = 0",
	"	flags = 0xc",
	"	toguid = 0",
	"	fromguid = 0",
	"	toname = tank@--head--",
	"	payloadlen = 1028",
	"	portable_mac = 0x1f 0x8a 0x09 0xd2 0x77 0x10 0x3c 0x41 0x5e 0x6b 0x8a 0x3b 0x1a 0x42 0x00 0x9e",
	"END checksum = 14b8d7c0ac/6b2b4a3f0f7/1aa8a1f0ae4a5/4b7c3e52f25c2c",
	"SUMMARY:",
	"	Total DRR_BEGIN records = 2 (1028 bytes)",
	"	portable_mac = 0x29 0x00 0xfe 0x11 0x63 0x51 0x42 0x0c 0x5d 0x90 0x3b 0x27 0x03 0x6a 0x6e 0x1f ",
}

func TestExtractDigests(t *testing.T) {
	digests, err := ExtractDigests(dumpOutput)
	if err != nil {
		t.Fatal(err)
	}

	expected := []string{
		"	portable_mac = 0x1f 0x8a 0x09 0xd2 0x77 0x10 0x3c 0x41 0x5e 0x6b 0x8a 0x3b 0x1a 0x42 0x00 0x9e",
		"	portable_mac = 0x29 0x00 0xfe 0x11 0x63 0x51 0x42 0x0c 0x5d 0x90 0x3b 0x27 0x03 0x6a 0x6e 0x1f",
	}
	if !reflect.DeepEqual(digests, expected) {
		t.Errorf("result: %q ; expected: %q", digests, expected)
	}
}

func TestExtractDigestsMalformed(t *testing.T) {
	_, err := ExtractDigests(Summary{"	portable_mac = 0xZZ"})
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected a ParseError, got %v", err)
	}
}

func TestExtractDigestsNone(t *testing.T) {
	digests, err := ExtractDigests(Summary{"BEGIN record", "END checksum = 0/0/0/0"})
	if err != nil || len(digests) != 0 {
		t.Errorf("digests: %v %v", digests, err)
	}
}

func TestExtractChecksums(t *testing.T) {
	expected := []string{"END checksum = 14b8d7c0ac/6b2b4a3f0f7/1aa8a1f0ae4a5/4b7c3e52f25c2c"}
	if checksums := ExtractChecksums(dumpOutput); !reflect.DeepEqual(checksums, expected) {
		t.Errorf("checksums: %q", checksums)
	}
}

func TestDigestsEqual(t *testing.T) {
	a := []string{"portable_mac = 0x01", "portable_mac = 0x02"}
	if !DigestsEqual(a, []string{"portable_mac = 0x01", "portable_mac = 0x02"}) {
		t.Error("same digests should be equal")
	}
	if DigestsEqual(a, []string{"portable_mac = 0x01"}) {
		t.Error("different lengths should differ")
	}
	if DigestsEqual(a, []string{"portable_mac = 0x02", "portable_mac = 0x01"}) {
		t.Error("order matters")
	}
	if !DigestsEqual(nil, []string{}) {
		t.Error("no digest on both sides is equal")
	}
}
