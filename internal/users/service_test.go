package users

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/steepleworks/steeple/internal/audit"
	"github.com/steepleworks/steeple/internal/shared"
)

type stubRole struct {
	tenantID string
	name     string
}

// stubRepo serializes mutations behind a mutex and applies the same
// owner-retention and role-tenancy rules the SQL layer enforces.
type stubRepo struct {
	mu    sync.Mutex
	users map[string]User
	roles map[string]stubRole
}

func newStubRepo() *stubRepo {
	return &stubRepo{users: make(map[string]User), roles: make(map[string]stubRole)}
}

func (s *stubRepo) List(_ context.Context, tenantID string) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []User
	for _, u := range s.users {
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *stubRepo) Get(_ context.Context, tenantID, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.TenantID != tenantID {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubRepo) Invite(_ context.Context, user User, _ string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[user.RoleID]
	if !ok || role.tenantID != user.TenantID {
		return User{}, fmt.Errorf("%w: role not found", shared.ErrNotFound)
	}
	user.ID = uuid.NewString()
	user.Status = shared.StatusInvited
	user.RoleName = role.name
	s.users[user.ID] = user
	return user, nil
}

func (s *stubRepo) countOwners(tenantID string) int {
	count := 0
	for _, u := range s.users {
		if u.TenantID == tenantID && u.RoleName == "Owner" && u.Status != shared.StatusSuspended {
			count++
		}
	}
	return count
}

func (s *stubRepo) SetStatus(_ context.Context, tenantID, id string, status shared.UserStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.TenantID != tenantID {
		return shared.ErrNotFound
	}
	if status == shared.StatusSuspended && u.Status != shared.StatusSuspended && u.RoleName == "Owner" {
		if s.countOwners(tenantID) <= 1 {
			return fmt.Errorf("%w: cannot remove the last active Owner", shared.ErrValidation)
		}
	}
	u.Status = status
	s.users[id] = u
	return nil
}

func (s *stubRepo) SetRole(_ context.Context, tenantID, id, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.TenantID != tenantID {
		return shared.ErrNotFound
	}
	newRole, ok := s.roles[roleID]
	if !ok || newRole.tenantID != tenantID {
		return shared.ErrNotFound
	}
	newName := newRole.name
	if u.RoleName == "Owner" && newName != "Owner" && u.Status != shared.StatusSuspended {
		if s.countOwners(tenantID) <= 1 {
			return fmt.Errorf("%w: cannot remove the last active Owner", shared.ErrValidation)
		}
	}
	u.RoleID = roleID
	u.RoleName = newName
	s.users[id] = u
	return nil
}

func (s *stubRepo) SetScope(_ context.Context, tenantID, id string, mode shared.BranchScopeMode, defaultBranchID string, grants []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.TenantID != tenantID {
		return shared.ErrNotFound
	}
	u.BranchScope = mode
	u.DefaultBranchID = defaultBranchID
	u.BranchGrants = append([]string(nil), grants...)
	s.users[id] = u
	return nil
}

type stubBranches struct {
	known map[string]bool
}

func (s *stubBranches) EnsureInTenant(_ context.Context, _, branchID string) error {
	if !s.known[branchID] {
		return shared.ErrNotFound
	}
	return nil
}

type stubAudit struct {
	entries []audit.Entry
}

func (s *stubAudit) Observe(_ context.Context, entry audit.Entry) {
	s.entries = append(s.entries, entry)
}

type stubNotifier struct {
	invites []string
	tokens  []string
	fail    bool
}

func (s *stubNotifier) EnqueueInvite(_ context.Context, email, _, token string) error {
	if s.fail {
		return errors.New("queue unavailable")
	}
	s.invites = append(s.invites, email)
	s.tokens = append(s.tokens, token)
	return nil
}

func testContext() *shared.SecurityContext {
	return &shared.SecurityContext{
		SubjectID:  "sub-1",
		Email:      "admin@example.org",
		TenantID:   "tenant-1",
		TenantName: "Grace Chapel",
		UserID:     "actor-1",
	}
}

func newTestService(repo *stubRepo, branches *stubBranches, auditor *stubAudit, notifier *stubNotifier) *Service {
	return NewService(repo, branches, auditor, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedOwnerRole(repo *stubRepo) string {
	repo.roles["role-owner"] = stubRole{tenantID: "tenant-1", name: "Owner"}
	repo.roles["role-staff"] = stubRole{tenantID: "tenant-1", name: "Staff"}
	return "role-owner"
}

func seedUser(repo *stubRepo, id, roleID string, status shared.UserStatus) {
	repo.users[id] = User{
		ID:       id,
		TenantID: "tenant-1",
		Email:    id + "@example.org",
		Status:   status,
		RoleID:   roleID,
		RoleName: repo.roles[roleID].name,
	}
}

func TestInviteFoldsEmailAndNotifies(t *testing.T) {
	repo := newStubRepo()
	seedOwnerRole(repo)
	branches := &stubBranches{known: map[string]bool{"branch-1": true}}
	auditor := &stubAudit{}
	notifier := &stubNotifier{}
	svc := newTestService(repo, branches, auditor, notifier)

	user, err := svc.Invite(context.Background(), testContext(), InviteInput{
		Email:       "  Pastor.John@Example.ORG ",
		RoleID:      "role-staff",
		BranchScope: "ALL",
	})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if user.Email != "pastor.john@example.org" {
		t.Fatalf("expected folded email, got %q", user.Email)
	}
	if user.Status != shared.StatusInvited {
		t.Fatalf("expected INVITED, got %q", user.Status)
	}
	if len(notifier.invites) != 1 || notifier.invites[0] != user.Email {
		t.Fatalf("expected one notification, got %+v", notifier.invites)
	}
	if len(auditor.entries) != 1 || auditor.entries[0].Action != audit.ActionUserInvite {
		t.Fatalf("expected user.invite entry, got %+v", auditor.entries)
	}
}

func TestInviteRestrictedRequiresGrant(t *testing.T) {
	repo := newStubRepo()
	seedOwnerRole(repo)
	svc := newTestService(repo, &stubBranches{known: map[string]bool{}}, &stubAudit{}, &stubNotifier{})

	_, err := svc.Invite(context.Background(), testContext(), InviteInput{
		Email:       "helper@example.org",
		RoleID:      "role-staff",
		BranchScope: "RESTRICTED",
	})
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInviteRejectsForeignBranchGrant(t *testing.T) {
	repo := newStubRepo()
	seedOwnerRole(repo)
	branches := &stubBranches{known: map[string]bool{"branch-1": true}}
	svc := newTestService(repo, branches, &stubAudit{}, &stubNotifier{})

	_, err := svc.Invite(context.Background(), testContext(), InviteInput{
		Email:       "helper@example.org",
		RoleID:      "role-staff",
		BranchScope: "RESTRICTED",
		BranchIDs:   []string{"branch-other-tenant"},
	})
	if !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected not-found for foreign branch, got %v", err)
	}
}

func TestInviteRejectsForeignTenantRole(t *testing.T) {
	repo := newStubRepo()
	seedOwnerRole(repo)
	repo.roles["role-foreign"] = stubRole{tenantID: "tenant-2", name: "Owner"}
	svc := newTestService(repo, &stubBranches{known: map[string]bool{}}, &stubAudit{}, &stubNotifier{})

	_, err := svc.Invite(context.Background(), testContext(), InviteInput{
		Email:       "intruder@example.org",
		RoleID:      "role-foreign",
		BranchScope: "ALL",
	})
	if !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected not-found for another tenant's role, got %v", err)
	}
	if len(repo.users) != 0 {
		t.Fatalf("expected no user row, got %d", len(repo.users))
	}
}

func TestInviteDefaultBranchMustBeGranted(t *testing.T) {
	repo := newStubRepo()
	seedOwnerRole(repo)
	branches := &stubBranches{known: map[string]bool{"branch-1": true, "branch-2": true}}
	svc := newTestService(repo, branches, &stubAudit{}, &stubNotifier{})

	_, err := svc.Invite(context.Background(), testContext(), InviteInput{
		Email:           "helper@example.org",
		RoleID:          "role-staff",
		BranchScope:     "RESTRICTED",
		DefaultBranchID: "branch-2",
		BranchIDs:       []string{"branch-1"},
	})
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInviteSurvivesNotifierFailure(t *testing.T) {
	repo := newStubRepo()
	seedOwnerRole(repo)
	branches := &stubBranches{known: map[string]bool{}}
	svc := newTestService(repo, branches, &stubAudit{}, &stubNotifier{fail: true})

	user, err := svc.Invite(context.Background(), testContext(), InviteInput{
		Email:       "helper@example.org",
		RoleID:      "role-staff",
		BranchScope: "ALL",
	})
	if err != nil {
		t.Fatalf("invite must not fail on notification error: %v", err)
	}
	if _, err := repo.Get(context.Background(), "tenant-1", user.ID); err != nil {
		t.Fatalf("user must be persisted, got %v", err)
	}
}

func TestSuspendLastOwnerRejected(t *testing.T) {
	repo := newStubRepo()
	ownerRole := seedOwnerRole(repo)
	seedUser(repo, "u1", ownerRole, shared.StatusActive)
	svc := newTestService(repo, &stubBranches{}, &stubAudit{}, &stubNotifier{})

	_, err := svc.ChangeStatus(context.Background(), testContext(), "u1", shared.StatusSuspended)
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSuspendOwnerWithBackupAllowed(t *testing.T) {
	repo := newStubRepo()
	ownerRole := seedOwnerRole(repo)
	auditor := &stubAudit{}
	seedUser(repo, "u1", ownerRole, shared.StatusActive)
	seedUser(repo, "u2", ownerRole, shared.StatusActive)
	svc := newTestService(repo, &stubBranches{}, auditor, &stubNotifier{})

	user, err := svc.ChangeStatus(context.Background(), testContext(), "u1", shared.StatusSuspended)
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if user.Status != shared.StatusSuspended {
		t.Fatalf("expected SUSPENDED, got %q", user.Status)
	}
	if len(auditor.entries) != 1 || auditor.entries[0].Action != audit.ActionUserStatusChange {
		t.Fatalf("expected user.status_change entry, got %+v", auditor.entries)
	}
}

func TestDemoteLastOwnerRejected(t *testing.T) {
	repo := newStubRepo()
	ownerRole := seedOwnerRole(repo)
	seedUser(repo, "u1", ownerRole, shared.StatusActive)
	svc := newTestService(repo, &stubBranches{}, &stubAudit{}, &stubNotifier{})

	_, err := svc.ChangeRole(context.Background(), testContext(), "u1", "role-staff")
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConcurrentDemotionsKeepOneOwner(t *testing.T) {
	// Two owners demoted concurrently. The retention check runs under the
	// same lock as the mutation, so exactly one demotion may succeed.
	repo := newStubRepo()
	ownerRole := seedOwnerRole(repo)
	seedUser(repo, "u1", ownerRole, shared.StatusActive)
	seedUser(repo, "u2", ownerRole, shared.StatusActive)
	svc := newTestService(repo, &stubBranches{}, &stubAudit{}, &stubNotifier{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = svc.ChangeRole(context.Background(), testContext(), id, "role-staff")
		}(i, id)
	}
	wg.Wait()

	if repo.countOwners("tenant-1") < 1 {
		t.Fatal("tenant lost its last owner")
	}
	failed := 0
	for _, err := range errs {
		if err != nil {
			if !errors.Is(err, shared.ErrValidation) {
				t.Fatalf("unexpected error kind: %v", err)
			}
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("expected exactly one demotion to fail, got %d", failed)
	}
}

func TestSetBranchScopeAudits(t *testing.T) {
	repo := newStubRepo()
	seedOwnerRole(repo)
	seedUser(repo, "u1", "role-staff", shared.StatusActive)
	branches := &stubBranches{known: map[string]bool{"branch-1": true, "branch-2": true}}
	auditor := &stubAudit{}
	svc := newTestService(repo, branches, auditor, &stubNotifier{})

	user, err := svc.SetBranchScope(context.Background(), testContext(), "u1", ScopeInput{
		BranchScope:     "RESTRICTED",
		DefaultBranchID: "branch-1",
		BranchIDs:       []string{"branch-1", "branch-2", "branch-1"},
	})
	if err != nil {
		t.Fatalf("set scope: %v", err)
	}
	if user.BranchScope != shared.ScopeRestricted {
		t.Fatalf("expected RESTRICTED, got %q", user.BranchScope)
	}
	if len(user.BranchGrants) != 2 {
		t.Fatalf("expected deduplicated grants, got %v", user.BranchGrants)
	}
	if len(auditor.entries) != 1 || auditor.entries[0].Action != audit.ActionUserScopeChange {
		t.Fatalf("expected user.scope_change entry, got %+v", auditor.entries)
	}
}

func TestInviteTokenHashMatchesToken(t *testing.T) {
	token, hash, err := newInviteToken()
	if err != nil {
		t.Fatalf("new invite token: %v", err)
	}
	if token == "" || hash == token {
		t.Fatal("token must be non-empty and never stored raw")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		t.Fatalf("hash must verify the raw token: %v", err)
	}
}
