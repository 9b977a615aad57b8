package util

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"081234567890":      "6281234567890",
		"+62 812-3456-7890": "6281234567890",
		"006281234567890":   "6281234567890",
		"81234567890":       "6281234567890",
		"6281234567890":     "6281234567890",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidContact(t *testing.T) {
	valid := []string{"081234567890", "6281234567890", "+6281912345678", "08123456789"}
	for _, c := range valid {
		if !ValidContact(c) {
			t.Fatalf("expected %q to be valid", c)
		}
	}

	invalid := []string{
		"",
		"   ",
		"12345",
		"0812",
		"62812345678901234",
		"+98 912 345 6789",
		"0812abc4567",
		"6280123456789",
		"021234567890",
	}
	for _, c := range invalid {
		if ValidContact(c) {
			t.Fatalf("expected %q to be rejected", c)
		}
	}
}
