// Package sim generates demo fixtures and synthetic incident reports for
// exercising the tracker end to end.
package sim

import (
	"fmt"
	"math/rand"
	"time"

	"threattracker.org/internal/auth"
)

// Account is a seeded demo login.
type Account struct {
	Username       string
	Password       string
	Role           auth.Role
	OrganizationID string
	CanCreateUsers bool
}

// Scenario bundles the seed organizations, accounts and the incident
// narratives a demo run draws from.
type Scenario struct {
	Name          string
	Organizations []auth.Organization
	Accounts      []Account
	Narratives    []string
}

// PhishingWaveScenario mirrors the stock demo fixtures: one tenant, a lead
// analyst with provisioning rights, one IT operator and one end user.
func PhishingWaveScenario() Scenario {
	return Scenario{
		Name: "PhishingWave",
		Organizations: []auth.Organization{
			{ID: "org-acme", Name: "Acme Industries"},
			{ID: "org-globex", Name: "Globex Corporation"},
		},
		Accounts: []Account{
			{Username: "lead_analyst", Password: "password123", Role: auth.RoleAnalyst, CanCreateUsers: true},
			{Username: "it_user", Password: "password123", Role: auth.RoleIT, OrganizationID: "org-acme"},
			{Username: "regular_user", Password: "password123", Role: auth.RoleUser, OrganizationID: "org-acme"},
			{Username: "globex_user", Password: "password123", Role: auth.RoleUser, OrganizationID: "org-globex"},
		},
		Narratives: []string{
			"Clicked a link in an invoice email that asked for my password",
			"Received a USB stick labeled 'salary review' in the mail",
			"Browser warned about a certificate on the intranet portal",
			"Laptop fan spinning at full speed since opening an attachment",
			"Password manager flagged a reused credential on a breach list",
			"Got a text from 'IT support' asking for my login code",
		},
	}
}

// Generator draws randomized incident reports from a scenario.
type Generator struct {
	scenario Scenario
	rnd      *rand.Rand
}

// NewGenerator seeds a generator; zero seed means time-based.
func NewGenerator(scenario Scenario, seed int64) Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return Generator{scenario: scenario, rnd: rand.New(rand.NewSource(seed))}
}

// Scenario returns the generator's fixture set.
func (g Generator) Scenario() Scenario { return g.scenario }

// NextIncident returns a randomized incident message.
func (g Generator) NextIncident() string {
	n := g.scenario.Narratives
	if len(n) == 0 {
		return "Suspicious activity observed"
	}
	return fmt.Sprintf("%s (case %04d)", n[g.rnd.Intn(len(n))], g.rnd.Intn(10000))
}
