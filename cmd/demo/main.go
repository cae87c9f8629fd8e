// Command demo generates a stream of simulated phishing incidents against a
// running API server: end users report alerts, the analyst classifies and
// escalates them, and a background poller keeps the analyst view fresh.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"threattracker.org/internal/auth"
	"threattracker.org/internal/sim"
	"threattracker.org/internal/tracker"
	"threattracker.org/internal/tracker/poll"
	"threattracker.org/internal/tracker/remote"
)

func main() {
	var (
		baseURL   = flag.String("base-url", "http://localhost:8080", "API base URL")
		reporters = flag.Int("reporters", 2, "Concurrent reporting worker count")
		duration  = flag.Duration("duration", time.Minute, "Duration of the simulation")
		interval  = flag.Duration("poll-interval", poll.DefaultInterval, "Analyst view refresh interval")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Printf("Launching demo: base=%s reporters=%d duration=%s", *baseURL, *reporters, *duration)

	client := remote.New(*baseURL)
	scenario := sim.PhishingWaveScenario()
	generator := sim.NewGenerator(scenario, time.Now().UnixNano())

	userCtx, user := login(ctx, client, "regular_user", "password123", "org-acme")
	analystCtx, _ := login(ctx, client, "lead_analyst", "password123", "")
	itCtx, _ := login(ctx, client, "it_user", "password123", "org-acme")

	var reported, classified, escalated, closed, failures int64

	var seen int
	poller := poll.New(func(ctx context.Context) error {
		alerts, err := client.ListAlerts(analystCtx, "org-acme")
		if err != nil {
			return err
		}
		if len(alerts) != seen {
			log.Printf("analyst view: %d alerts in org-acme", len(alerts))
			seen = len(alerts)
		}
		return nil
	})
	poller.Interval = *interval
	poller.OnError = func(err error) { log.Printf("poll: %v", err) }

	pollCtx, stopPoll := context.WithCancel(ctx)
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		poller.Run(pollCtx)
	}()

	var wg sync.WaitGroup
	deadline := time.Now().Add(*duration)

	for i := 0; i < *reporters; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id*9973)))
			for time.Now().Before(deadline) {
				select {
				case <-ctx.Done():
					return
				default:
				}
				alert, err := client.Report(userCtx, user.UserID, generator.NextIncident())
				if err != nil {
					log.Printf("reporter %d: %v", id, err)
					atomic.AddInt64(&failures, 1)
					time.Sleep(200 * time.Millisecond)
					continue
				}
				atomic.AddInt64(&reported, 1)

				typ := tracker.TypeSpam
				if rnd.Intn(3) == 0 {
					typ = tracker.TypeThreat
				}
				alert, err = client.Classify(analystCtx, alert.ID, typ, alert.Version)
				if err != nil {
					log.Printf("classify %s: %v", alert.ID, err)
					atomic.AddInt64(&failures, 1)
					continue
				}
				atomic.AddInt64(&classified, 1)
				poller.Kick()

				if typ == tracker.TypeThreat {
					ticket, err := client.CreateTicket(analystCtx, alert.ID, "Investigate "+alert.Message)
					if err != nil {
						log.Printf("escalate %s: %v", alert.ID, err)
						atomic.AddInt64(&failures, 1)
						continue
					}
					atomic.AddInt64(&escalated, 1)
					if err := resolve(itCtx, client, ticket); err != nil {
						log.Printf("resolve %s: %v", ticket.ID, err)
						atomic.AddInt64(&failures, 1)
						continue
					}
					atomic.AddInt64(&closed, 1)
				}
				time.Sleep(time.Duration(100+rnd.Intn(300)) * time.Millisecond)
			}
		}(i)
	}

	wg.Wait()
	stopPoll()
	<-pollDone

	log.Printf("Run complete: reported=%d classified=%d escalated=%d closed=%d failures=%d",
		reported, classified, escalated, closed, failures)
}

func resolve(ctx context.Context, client *remote.Client, ticket tracker.Ticket) error {
	ticket, err := client.UpdateTicketStatus(ctx, ticket.ID, tracker.TicketInProgress, ticket.Version)
	if err != nil {
		return err
	}
	_, err = client.UpdateTicketStatus(ctx, ticket.ID, tracker.TicketClosed, ticket.Version)
	return err
}

func login(ctx context.Context, client *remote.Client, username, password, orgID string) (context.Context, auth.Principal) {
	session, principal, err := client.Login(ctx, username, password, orgID)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			log.Fatalf("login %s: %v (is the server seeded with the demo fixtures?)", username, err)
		}
		log.Fatalf("login %s: %v", username, err)
	}
	return auth.ContextWithToken(ctx, session.Token), principal
}
