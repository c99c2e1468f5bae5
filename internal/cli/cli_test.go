package cli

import (
	"testing"
)

func TestParseRanges(t *testing.T) {
	ranges, err := parseRanges([]string{"766525332.995:766526576.995", "0:10"})
	if err != nil {
		t.Fatalf("parseRanges returned error: %v", err)
	}
	if len(ranges) != 2 {
		t.Fatalf("len(ranges) = %d, want 2", len(ranges))
	}
	if ranges[0].Start != 766525332.995 || ranges[0].End != 766526576.995 {
		t.Errorf("first range = %+v", ranges[0])
	}
	if ranges[1].Start != 0 || ranges[1].End != 10 {
		t.Errorf("second range = %+v", ranges[1])
	}
}

func TestParseRangesErrors(t *testing.T) {
	cases := []struct {
		name  string
		specs []string
	}{
		{"empty", nil},
		{"missing separator", []string{"100"}},
		{"bad start", []string{"abc:10"}},
		{"bad end", []string{"10:xyz"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseRanges(tc.specs); err == nil {
				t.Errorf("parseRanges(%v) returned no error", tc.specs)
			}
		})
	}
}
