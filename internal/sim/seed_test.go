package sim

import (
	"context"
	"strings"
	"testing"

	"threattracker.org/internal/auth"
)

func TestSeedIsRepeatable(t *testing.T) {
	store := auth.NewInMemory()
	ctx := context.Background()
	scenario := PhishingWaveScenario()

	if err := Seed(ctx, store, scenario); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	// Re-running against a populated store is a no-op, not a failure.
	if err := Seed(ctx, store, scenario); err != nil {
		t.Fatalf("second Seed: %v", err)
	}

	orgs, err := store.ListOrganizations(ctx)
	if err != nil {
		t.Fatalf("ListOrganizations: %v", err)
	}
	if len(orgs) != len(scenario.Organizations) {
		t.Fatalf("expected %d organizations, got %d", len(scenario.Organizations), len(orgs))
	}

	for _, acc := range scenario.Accounts {
		u, err := store.FindUserByUsername(ctx, acc.Username)
		if err != nil {
			t.Fatalf("seeded account %s missing: %v", acc.Username, err)
		}
		if u.Role != acc.Role || u.OrganizationID != acc.OrganizationID {
			t.Fatalf("account %s: %+v", acc.Username, u)
		}
		if err := auth.VerifyPassword(u.PasswordHash, acc.Password); err != nil {
			t.Fatalf("account %s password not usable: %v", acc.Username, err)
		}
		if u.HasCapability(auth.CapCreateUsers) != acc.CanCreateUsers {
			t.Fatalf("account %s capability mismatch", acc.Username)
		}
	}
}

func TestGeneratorIsDeterministicPerSeed(t *testing.T) {
	scenario := PhishingWaveScenario()
	g1 := NewGenerator(scenario, 42)
	g2 := NewGenerator(scenario, 42)

	for i := 0; i < 10; i++ {
		a, b := g1.NextIncident(), g2.NextIncident()
		if a != b {
			t.Fatalf("diverged at %d: %q vs %q", i, a, b)
		}
		if a == "" {
			t.Fatal("empty incident message")
		}
	}
}

func TestGeneratorDrawsFromNarratives(t *testing.T) {
	scenario := PhishingWaveScenario()
	g := NewGenerator(scenario, 7)

	msg := g.NextIncident()
	var matched bool
	for _, n := range scenario.Narratives {
		if strings.HasPrefix(msg, n) {
			matched = true
			break
		}
	}
	if !matched {
		t.Fatalf("incident %q not drawn from the scenario narratives", msg)
	}
}
