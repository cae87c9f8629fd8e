package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"threattracker.org/internal/auth"
	"threattracker.org/internal/tracker"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func principalCtx(role auth.Role, orgID string) context.Context {
	return auth.ContextWithPrincipal(context.Background(), auth.Principal{
		UserID:         "usr-1",
		Username:       "tester",
		Role:           role,
		OrganizationID: orgID,
		ExpiresAt:      time.Now().Add(time.Hour),
	})
}

func TestCreateUserConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from users").WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	err := store.CreateUser(context.Background(), &auth.User{ID: "u-1", Username: "alice"})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserInserts(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from users").WithArgs("alice").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("insert into users").
		WithArgs("u-1", "alice", "hash", "User", "org-1", false, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.CreateUser(context.Background(), &auth.User{
		ID: "u-1", Username: "alice", PasswordHash: "hash",
		Role: auth.RoleUser, OrganizationID: "org-1", CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, username, password_hash").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	if _, err := store.FindUser(context.Background(), "nope"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func alertRows(status, typ string, version int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "organization_id", "message", "status", "type", "version", "triggered_at"}).
		AddRow("a-1", "usr-1", "org-1", "phish", status, typ, version, time.Now().UTC())
}

func TestClassifyTransition(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select id, user_id, organization_id.*from alerts.*for update").WithArgs("a-1").
		WillReturnRows(alertRows("New", "", 1))
	mock.ExpectExec("update alerts set status").
		WithArgs("a-1", "Classified", "Threat", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a, err := store.Classify(principalCtx(auth.RoleAnalyst, ""), "a-1", tracker.TypeThreat, 1)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if a.Status != tracker.AlertClassified || a.Type != tracker.TypeThreat || a.Version != 2 {
		t.Fatalf("unexpected alert: %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClassifyRejectsSecondVerdict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select id, user_id, organization_id.*from alerts.*for update").WithArgs("a-1").
		WillReturnRows(alertRows("Classified", "Threat", 2))
	mock.ExpectRollback()

	if _, err := store.Classify(principalCtx(auth.RoleAnalyst, ""), "a-1", tracker.TypeSpam, 0); !errors.Is(err, tracker.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestClassifyVersionConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select id, user_id, organization_id.*from alerts.*for update").WithArgs("a-1").
		WillReturnRows(alertRows("New", "", 3))
	mock.ExpectRollback()

	if _, err := store.Classify(principalCtx(auth.RoleAnalyst, ""), "a-1", tracker.TypeSpam, 1); !errors.Is(err, tracker.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestClassifyRequiresAnalyst(t *testing.T) {
	store, _ := newMockStore(t)

	if _, err := store.Classify(principalCtx(auth.RoleIT, "org-1"), "a-1", tracker.TypeSpam, 0); !errors.Is(err, tracker.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := store.Classify(context.Background(), "a-1", tracker.TypeSpam, 0); !errors.Is(err, tracker.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func ticketRows(status string, version int64) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "alert_id", "organization_id", "description", "status", "version", "created_at", "updated_at"}).
		AddRow("t-1", "a-1", "org-1", "Investigate", status, version, now, now)
}

func TestCreateTicketReturnsExisting(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select id, user_id, organization_id.*from alerts.*for update").WithArgs("a-1").
		WillReturnRows(alertRows("Classified", "Threat", 2))
	mock.ExpectQuery("select id, alert_id.*from tickets where alert_id").WithArgs("a-1").
		WillReturnRows(ticketRows("Open", 1))
	mock.ExpectRollback()

	tk, err := store.CreateTicket(principalCtx(auth.RoleAnalyst, ""), "a-1", "Investigate again")
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if tk.ID != "t-1" || tk.Description != "Investigate" {
		t.Fatalf("expected the existing ticket back, got %+v", tk)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateTicketRequiresThreat(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select id, user_id, organization_id.*from alerts.*for update").WithArgs("a-1").
		WillReturnRows(alertRows("Classified", "Spam", 2))
	mock.ExpectRollback()

	if _, err := store.CreateTicket(principalCtx(auth.RoleAnalyst, ""), "a-1", "look"); !errors.Is(err, tracker.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestUpdateTicketStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select id, alert_id.*from tickets where id.*for update").WithArgs("t-1").
		WillReturnRows(ticketRows("Open", 1))
	mock.ExpectExec("update tickets set status").
		WithArgs("t-1", "In-Progress", sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tk, err := store.UpdateTicketStatus(principalCtx(auth.RoleIT, "org-1"), "t-1", tracker.TicketInProgress, 1)
	if err != nil {
		t.Fatalf("UpdateTicketStatus: %v", err)
	}
	if tk.Status != tracker.TicketInProgress || tk.Version != 2 {
		t.Fatalf("unexpected ticket: %+v", tk)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateTicketStatusGuards(t *testing.T) {
	store, mock := newMockStore(t)

	// Closed is terminal.
	mock.ExpectBegin()
	mock.ExpectQuery("select id, alert_id.*from tickets where id.*for update").WithArgs("t-1").
		WillReturnRows(ticketRows("Closed", 3))
	mock.ExpectRollback()

	if _, err := store.UpdateTicketStatus(principalCtx(auth.RoleIT, "org-1"), "t-1", tracker.TicketOpen, 0); !errors.Is(err, tracker.ErrInvalidTransition) {
		t.Fatalf("closed ticket: expected ErrInvalidTransition, got %v", err)
	}

	// IT from another organization never touches the row.
	mock.ExpectBegin()
	mock.ExpectQuery("select id, alert_id.*from tickets where id.*for update").WithArgs("t-1").
		WillReturnRows(ticketRows("Open", 1))
	mock.ExpectRollback()

	if _, err := store.UpdateTicketStatus(principalCtx(auth.RoleIT, "org-2"), "t-1", tracker.TicketClosed, 0); !errors.Is(err, tracker.ErrForbidden) {
		t.Fatalf("cross-org: expected ErrForbidden, got %v", err)
	}
}

func TestListTicketsRequiresScope(t *testing.T) {
	store, _ := newMockStore(t)

	if _, err := store.ListTickets(principalCtx(auth.RoleIT, "org-1"), ""); !errors.Is(err, tracker.ErrMissingScope) {
		t.Fatalf("expected ErrMissingScope, got %v", err)
	}
}

func TestExpiredPrincipal(t *testing.T) {
	store, _ := newMockStore(t)
	store.SetClock(func() time.Time { return time.Now().Add(48 * time.Hour) })

	ctx := principalCtx(auth.RoleAnalyst, "")
	if _, err := store.ListAlerts(ctx, ""); !errors.Is(err, auth.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}
