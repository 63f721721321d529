package rules_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"syndicate/internal/rules"
)

func TestParseRefineTags(t *testing.T) {
	cases := []struct {
		input string
		want  [][]string
	}{
		{"", nil},
		{`"Budget, Tax" "gst"`, [][]string{{"budget", "tax"}, {"gst"}}},
		{`markets, india`, [][]string{{"markets", "india"}}},
		{`"budget" loose, words`, [][]string{{"budget"}, {"loose", "words"}}},
		{`"unterminated, set`, [][]string{{"unterminated", "set"}}},
		{`"" " , "`, nil},
	}
	for _, tc := range cases {
		got := rules.ParseRefineTags(tc.input)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("ParseRefineTags(%q) mismatch (-want +got):\n%s", tc.input, diff)
		}
	}
}

func TestRefineMatch(t *testing.T) {
	sets := rules.ParseRefineTags(`"budget, tax" "gst"`)
	if !rules.RefineMatch(nil, []string{"anything"}) {
		t.Fatal("empty refine must pass")
	}
	if !rules.RefineMatch(sets, []string{"tax", "budget", "india"}) {
		t.Fatal("expected first set to match")
	}
	if !rules.RefineMatch(sets, []string{"GST"}) {
		t.Fatal("expected second set to match case-insensitively")
	}
	if rules.RefineMatch(sets, []string{"budget"}) {
		t.Fatal("partial set must not match")
	}
}

func TestKeywordFilter(t *testing.T) {
	cand := rules.Candidate{Title: "Election results declared", Body: "The ruling party won in Kerala."}
	cases := []struct {
		name         string
		black, white string
		want         bool
	}{
		{"no lists", "", "", true},
		{"black hit", "kerala", "", false},
		{"white hit", "", "election, cricket", true},
		{"white miss", "", "cricket", false},
		{"black beats white", "ruling", "election", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := rules.NewKeywordFilter(tc.black, tc.white)
			if got := f.Allows(cand); got != tc.want {
				t.Fatalf("Allows = %v, want %v", got, tc.want)
			}
		})
	}
}
