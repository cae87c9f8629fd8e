package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"threattracker.org/internal/auth"
	"threattracker.org/internal/ids"
	"threattracker.org/internal/tracker"
)

// Store is the Postgres-backed persistence layer. It implements both the
// auth directory and the full tracker lifecycle engine; lifecycle
// transitions are version-checked in SQL so concurrent writers cannot race
// past the state machine.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ auth.Store      = (*Store)(nil)
	_ tracker.Service = (*Store)(nil)
)

// Open connects to Postgres via the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewStore(db), nil
}

// NewStore wraps an existing handle (used by tests with sqlmock).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// SetClock overrides the time source. Intended for tests.
func (s *Store) SetClock(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// --- auth.Store ---

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `select 1 from users where username=$1`, u.Username).Scan(&exists)
	if err == nil {
		return auth.ErrConflict
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into users(id, username, password_hash, role, organization_id, can_create_users, created_at)
		values ($1,$2,$3,$4,nullif($5,''),$6,$7)
	`, u.ID, u.Username, u.PasswordHash, string(u.Role), u.OrganizationID,
		u.HasCapability(auth.CapCreateUsers), u.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

const userColumns = `id, username, password_hash, role, coalesce(organization_id,''), can_create_users, created_at`

func scanUser(row *sql.Row) (*auth.User, error) {
	var u auth.User
	var role string
	var canCreate bool
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.OrganizationID, &canCreate, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	if canCreate {
		u.Capabilities = []auth.Capability{auth.CapCreateUsers}
	}
	return &u, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id))
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where username=$1`, username))
}

func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `update users set password_hash=$2 where id=$1`, userID, passwordHash)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) CreateOrganization(ctx context.Context, org *auth.Organization) error {
	res, err := s.db.ExecContext(ctx, `
		insert into organizations(id, name, created_at)
		values ($1,$2,$3) on conflict (id) do nothing
	`, org.ID, org.Name, org.CreatedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrConflict
	}
	return nil
}

func (s *Store) FindOrganization(ctx context.Context, id string) (*auth.Organization, error) {
	var org auth.Organization
	err := s.db.QueryRowContext(ctx, `select id, name, created_at from organizations where id=$1`, id).
		Scan(&org.ID, &org.Name, &org.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *Store) ListOrganizations(ctx context.Context) ([]*auth.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name, created_at from organizations order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.Organization
	for rows.Next() {
		var org auth.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &org)
	}
	return out, rows.Err()
}

// --- tracker.Service ---

func (s *Store) principal(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return auth.Principal{}, tracker.ErrUnauthenticated
	}
	if p.ExpiredAt(s.now()) {
		return auth.Principal{}, auth.ErrSessionExpired
	}
	return p, nil
}

func sameOrg(p auth.Principal, organizationID string) bool {
	return p.Role == auth.RoleAnalyst || p.OrganizationID == organizationID
}

const alertColumns = `id, user_id, organization_id, message, status, coalesce(type,''), version, triggered_at`

func scanAlert(scan func(dest ...any) error) (tracker.Alert, error) {
	var a tracker.Alert
	var status, typ string
	err := scan(&a.ID, &a.UserID, &a.OrganizationID, &a.Message, &status, &typ, &a.Version, &a.TriggeredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tracker.Alert{}, tracker.ErrNotFound
	}
	if err != nil {
		return tracker.Alert{}, err
	}
	a.Status = tracker.AlertStatus(status)
	a.Type = tracker.AlertType(typ)
	return a, nil
}

func (s *Store) Report(ctx context.Context, userID, message string) (tracker.Alert, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return tracker.Alert{}, err
	}
	userID = strings.TrimSpace(userID)
	message = strings.TrimSpace(message)
	if userID == "" || message == "" {
		return tracker.Alert{}, tracker.ErrInvalidInput
	}
	if p.Role == auth.RoleUser && userID != p.UserID {
		return tracker.Alert{}, tracker.ErrForbidden
	}

	reporter, err := s.FindUser(ctx, userID)
	if err != nil {
		return tracker.Alert{}, tracker.ErrNotFound
	}
	if reporter.OrganizationID == "" {
		return tracker.Alert{}, tracker.ErrInvalidInput
	}
	if !sameOrg(p, reporter.OrganizationID) {
		return tracker.Alert{}, tracker.ErrForbidden
	}

	a := tracker.Alert{
		ID:             ids.New(),
		UserID:         reporter.ID,
		OrganizationID: reporter.OrganizationID,
		Message:        message,
		Status:         tracker.AlertNew,
		Version:        1,
		TriggeredAt:    s.now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into alerts(id, user_id, organization_id, message, status, type, version, triggered_at)
		values ($1,$2,$3,$4,$5,null,$6,$7)
	`, a.ID, a.UserID, a.OrganizationID, a.Message, string(a.Status), a.Version, a.TriggeredAt); err != nil {
		return tracker.Alert{}, err
	}
	return a, nil
}

func (s *Store) ListAlerts(ctx context.Context, organizationID string) ([]tracker.Alert, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	organizationID = strings.TrimSpace(organizationID)
	if p.Role != auth.RoleAnalyst {
		if organizationID == "" {
			organizationID = p.OrganizationID
		}
		if organizationID != p.OrganizationID {
			return nil, tracker.ErrForbidden
		}
	}

	query := `select ` + alertColumns + ` from alerts order by id`
	args := []any{}
	if organizationID != "" {
		query = `select ` + alertColumns + ` from alerts where organization_id=$1 order by id`
		args = append(args, organizationID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tracker.Alert
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) Classify(ctx context.Context, alertID string, typ tracker.AlertType, expectedVersion int64) (tracker.Alert, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return tracker.Alert{}, err
	}
	if p.Role != auth.RoleAnalyst {
		return tracker.Alert{}, tracker.ErrForbidden
	}
	if typ != tracker.TypeSpam && typ != tracker.TypeThreat {
		return tracker.Alert{}, tracker.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tracker.Alert{}, err
	}
	defer func() { _ = tx.Rollback() }()

	a, err := scanAlert(tx.QueryRowContext(ctx,
		`select `+alertColumns+` from alerts where id=$1 for update`, alertID).Scan)
	if err != nil {
		return tracker.Alert{}, err
	}
	if expectedVersion != 0 && a.Version != expectedVersion {
		return tracker.Alert{}, tracker.ErrVersionConflict
	}
	if a.Status != tracker.AlertNew {
		return tracker.Alert{}, tracker.ErrInvalidTransition
	}

	if _, err := tx.ExecContext(ctx, `
		update alerts set status=$2, type=$3, version=version+1
		where id=$1 and version=$4
	`, alertID, string(tracker.AlertClassified), string(typ), a.Version); err != nil {
		return tracker.Alert{}, err
	}
	if err := tx.Commit(); err != nil {
		return tracker.Alert{}, err
	}

	a.Status = tracker.AlertClassified
	a.Type = typ
	a.Version++
	return a, nil
}

func (s *Store) Review(ctx context.Context, alertID string) (tracker.Alert, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return tracker.Alert{}, err
	}
	if p.Role == auth.RoleUser {
		return tracker.Alert{}, tracker.ErrForbidden
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tracker.Alert{}, err
	}
	defer func() { _ = tx.Rollback() }()

	a, err := scanAlert(tx.QueryRowContext(ctx,
		`select `+alertColumns+` from alerts where id=$1 for update`, alertID).Scan)
	if err != nil {
		return tracker.Alert{}, err
	}
	if !sameOrg(p, a.OrganizationID) {
		return tracker.Alert{}, tracker.ErrForbidden
	}
	if a.Status != tracker.AlertClassified {
		return tracker.Alert{}, tracker.ErrInvalidTransition
	}

	if _, err := tx.ExecContext(ctx, `
		update alerts set status=$2, version=version+1 where id=$1 and version=$3
	`, alertID, string(tracker.AlertReviewed), a.Version); err != nil {
		return tracker.Alert{}, err
	}
	if err := tx.Commit(); err != nil {
		return tracker.Alert{}, err
	}

	a.Status = tracker.AlertReviewed
	a.Version++
	return a, nil
}

const ticketColumns = `id, alert_id, organization_id, description, status, version, created_at, updated_at`

func scanTicket(scan func(dest ...any) error) (tracker.Ticket, error) {
	var t tracker.Ticket
	var status string
	err := scan(&t.ID, &t.AlertID, &t.OrganizationID, &t.Description, &status, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tracker.Ticket{}, tracker.ErrNotFound
	}
	if err != nil {
		return tracker.Ticket{}, err
	}
	t.Status = tracker.TicketStatus(status)
	return t, nil
}

func (s *Store) CreateTicket(ctx context.Context, alertID, description string) (tracker.Ticket, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return tracker.Ticket{}, err
	}
	if p.Role != auth.RoleAnalyst {
		return tracker.Ticket{}, tracker.ErrForbidden
	}
	alertID = strings.TrimSpace(alertID)
	description = strings.TrimSpace(description)
	if alertID == "" || description == "" {
		return tracker.Ticket{}, tracker.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tracker.Ticket{}, err
	}
	defer func() { _ = tx.Rollback() }()

	a, err := scanAlert(tx.QueryRowContext(ctx,
		`select `+alertColumns+` from alerts where id=$1 for update`, alertID).Scan)
	if err != nil {
		return tracker.Ticket{}, err
	}
	if a.Type != tracker.TypeThreat || (a.Status != tracker.AlertClassified && a.Status != tracker.AlertReviewed) {
		return tracker.Ticket{}, tracker.ErrInvalidTransition
	}

	// Idempotency: one remediation ticket per alert.
	existing, err := scanTicket(tx.QueryRowContext(ctx,
		`select `+ticketColumns+` from tickets where alert_id=$1`, alertID).Scan)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, tracker.ErrNotFound) {
		return tracker.Ticket{}, err
	}

	now := s.now().UTC()
	t := tracker.Ticket{
		ID:             ids.New(),
		AlertID:        a.ID,
		OrganizationID: a.OrganizationID,
		Description:    description,
		Status:         tracker.TicketOpen,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into tickets(id, alert_id, organization_id, description, status, version, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, t.ID, t.AlertID, t.OrganizationID, t.Description, string(t.Status), t.Version, t.CreatedAt, t.UpdatedAt); err != nil {
		return tracker.Ticket{}, err
	}
	if err := tx.Commit(); err != nil {
		return tracker.Ticket{}, err
	}
	return t, nil
}

func (s *Store) ListTickets(ctx context.Context, organizationID string) ([]tracker.Ticket, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, tracker.ErrMissingScope
	}
	if !sameOrg(p, organizationID) {
		return nil, tracker.ErrForbidden
	}

	rows, err := s.db.QueryContext(ctx,
		`select `+ticketColumns+` from tickets where organization_id=$1 order by id`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tracker.Ticket
	for rows.Next() {
		t, err := scanTicket(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTicketStatus(ctx context.Context, ticketID string, status tracker.TicketStatus, expectedVersion int64) (tracker.Ticket, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return tracker.Ticket{}, err
	}
	if p.Role != auth.RoleIT {
		return tracker.Ticket{}, tracker.ErrForbidden
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tracker.Ticket{}, err
	}
	defer func() { _ = tx.Rollback() }()

	t, err := scanTicket(tx.QueryRowContext(ctx,
		`select `+ticketColumns+` from tickets where id=$1 for update`, ticketID).Scan)
	if err != nil {
		return tracker.Ticket{}, err
	}
	if t.OrganizationID != p.OrganizationID {
		return tracker.Ticket{}, tracker.ErrForbidden
	}
	if expectedVersion != 0 && t.Version != expectedVersion {
		return tracker.Ticket{}, tracker.ErrVersionConflict
	}
	if !tracker.CanTransition(t.Status, status) {
		return tracker.Ticket{}, tracker.ErrInvalidTransition
	}

	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx, `
		update tickets set status=$2, version=version+1, updated_at=$3
		where id=$1 and version=$4
	`, ticketID, string(status), now, t.Version); err != nil {
		return tracker.Ticket{}, err
	}
	if err := tx.Commit(); err != nil {
		return tracker.Ticket{}, err
	}

	t.Status = status
	t.Version++
	t.UpdatedAt = now
	return t, nil
}
