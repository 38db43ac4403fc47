package router

import "testing"

func TestRouteScenarios(t *testing.T) {
	cases := []struct {
		text string
		want string // "" means no match
	}{
		{"write me a email about the project", "email_writer"},
		{"draft an email to the team", "email_writer"},
		{"research the latest on solar panels", "research"},
		{"deep dive on battery tech", "research"},
		{"just say hello", ""},
		{"can you find sources on climate policy", "research"},
		{"please write a reply to this customer", "email_writer"},
		{"give me some background on quantum computing", "research"},
	}

	for _, tc := range cases {
		got := Route(tc.text)
		if tc.want == "" {
			if got != nil {
				t.Fatalf("Route(%q) = %+v, want no match", tc.text, got)
			}
			continue
		}
		if got == nil {
			t.Fatalf("Route(%q) = nil, want %s", tc.text, tc.want)
		}
		if got.Agent.ID != tc.want {
			t.Fatalf("Route(%q).Agent.ID = %s, want %s", tc.text, got.Agent.ID, tc.want)
		}
	}
}

func TestRouteResearchTakesPriorityOverEmail(t *testing.T) {
	got := Route("research and then email me a background on solar panels")
	if got == nil || got.Agent.ID != "research" {
		t.Fatalf("expected research to win rule-order priority, got %+v", got)
	}
}
