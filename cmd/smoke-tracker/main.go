// Command smoke-tracker drives the full alert/ticket lifecycle against a
// running API server seeded with the demo fixtures: report an alert as the
// end user, classify it as the analyst, escalate to a ticket, then walk the
// ticket to Closed as IT and confirm the terminal state sticks.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"threattracker.org/internal/auth"
	"threattracker.org/internal/tracker"
	"threattracker.org/internal/tracker/remote"
)

func main() {
	baseURL := os.Getenv("TRACKER_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := remote.New(baseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	userCtx, user := login(ctx, client, "regular_user", "password123", "org-acme")
	analystCtx, _ := login(ctx, client, "lead_analyst", "password123", "")
	itCtx, _ := login(ctx, client, "it_user", "password123", "org-acme")

	alert, err := client.Report(userCtx, user.UserID, "Clicked http://bad.com")
	if err != nil {
		log.Fatalf("report alert: %v", err)
	}
	if alert.Status != tracker.AlertNew || alert.Type != "" {
		log.Fatalf("fresh alert in unexpected state: %+v", alert)
	}

	alert, err = client.Classify(analystCtx, alert.ID, tracker.TypeThreat, 0)
	if err != nil {
		log.Fatalf("classify: %v", err)
	}
	if _, err := client.Classify(analystCtx, alert.ID, tracker.TypeSpam, 0); !errors.Is(err, tracker.ErrInvalidTransition) {
		log.Fatalf("second classification should be rejected, got %v", err)
	}

	ticket, err := client.CreateTicket(analystCtx, alert.ID, "Investigate phishing")
	if err != nil {
		log.Fatalf("create ticket: %v", err)
	}
	if ticket.Status != tracker.TicketOpen {
		log.Fatalf("fresh ticket not open: %+v", ticket)
	}

	ticket, err = client.UpdateTicketStatus(itCtx, ticket.ID, tracker.TicketInProgress, 0)
	if err != nil {
		log.Fatalf("ticket to in-progress: %v", err)
	}
	ticket, err = client.UpdateTicketStatus(itCtx, ticket.ID, tracker.TicketClosed, 0)
	if err != nil {
		log.Fatalf("ticket to closed: %v", err)
	}
	if _, err := client.UpdateTicketStatus(itCtx, ticket.ID, tracker.TicketOpen, 0); !errors.Is(err, tracker.ErrInvalidTransition) {
		log.Fatalf("closed ticket must be terminal, got %v", err)
	}

	fmt.Printf("smoke test passed: alert=%s ticket=%s\n", alert.ID, ticket.ID)
}

func login(ctx context.Context, client *remote.Client, username, password, orgID string) (context.Context, auth.Principal) {
	session, principal, err := client.Login(ctx, username, password, orgID)
	if err != nil {
		log.Fatalf("login %s: %v", username, err)
	}
	return auth.ContextWithToken(ctx, session.Token), principal
}
