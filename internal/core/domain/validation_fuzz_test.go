package domain

import (
	"testing"
)

func isNameByte(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '-'
}

func acceptableName(raw []byte) bool {
	if len(raw) < MinNameLength || len(raw) > MaxNameLength {
		return false
	}
	for _, b := range raw {
		if !isNameByte(b) {
			return false
		}
	}
	return true
}

// FuzzValidateName checks that a byte sequence is accepted iff its length is
// within bounds and every byte belongs to the name alphabet.
func FuzzValidateName(f *testing.F) {
	seeds := []string{
		"abc", "ab", "alice", "a-b-c", "ALICE", "x_y", "dot.", "\x00\x01\x02",
		"\xff\xfe\xfd", "ünï", "0123456789012345678901234567890", "01234567890123456789012345678901",
		"012345678901234567890123456789012",
	}
	for _, s := range seeds {
		f.Add([]byte(s))
	}

	f.Fuzz(func(t *testing.T, raw []byte) {
		err := ValidateName(string(raw))
		want := acceptableName(raw)
		if want && err != nil {
			t.Fatalf("ValidateName(%q) rejected a valid name: %v", raw, err)
		}
		if !want && err == nil {
			t.Fatalf("ValidateName(%q) accepted an invalid name", raw)
		}
	})
}
