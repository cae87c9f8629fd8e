package tracker

import "testing"

func TestParseAlertType(t *testing.T) {
	cases := []struct {
		in   string
		want AlertType
		ok   bool
	}{
		{"Spam", TypeSpam, true},
		{"threat", TypeThreat, true},
		{"  THREAT  ", TypeThreat, true},
		{"malware", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseAlertType(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseAlertType(%q) = %q, %v", tc.in, got, ok)
		}
	}
}

func TestParseTicketStatus(t *testing.T) {
	cases := []struct {
		in   string
		want TicketStatus
		ok   bool
	}{
		{"open", TicketOpen, true},
		{"In-Progress", TicketInProgress, true},
		{"in progress", TicketInProgress, true},
		{"CLOSED", TicketClosed, true},
		{"done", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseTicketStatus(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseTicketStatus(%q) = %q, %v", tc.in, got, ok)
		}
	}
}

func TestCanTransition(t *testing.T) {
	legal := map[[2]TicketStatus]bool{
		{TicketOpen, TicketInProgress}:       true,
		{TicketOpen, TicketClosed}:           true,
		{TicketInProgress, TicketClosed}:     true,
		{TicketInProgress, TicketOpen}:       false,
		{TicketClosed, TicketOpen}:           false,
		{TicketClosed, TicketInProgress}:     false,
		{TicketOpen, TicketOpen}:             false,
		{TicketInProgress, TicketInProgress}: false,
		{TicketClosed, TicketClosed}:         false,
	}
	for pair, want := range legal {
		if got := CanTransition(pair[0], pair[1]); got != want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", pair[0], pair[1], got, want)
		}
	}
}
