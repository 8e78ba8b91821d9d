package branches

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/steepleworks/steeple/internal/audit"
	"github.com/steepleworks/steeple/internal/shared"
)

type stubUser struct {
	scope  shared.BranchScopeMode
	grants map[string]bool
}

type stubRepo struct {
	branches map[string]Branch
	users    map[string]*stubUser
}

func newStubRepo() *stubRepo {
	return &stubRepo{branches: make(map[string]Branch), users: make(map[string]*stubUser)}
}

func (s *stubRepo) List(_ context.Context, tenantID string, includeArchived bool) ([]Branch, error) {
	var out []Branch
	for _, b := range s.branches {
		if b.TenantID != tenantID {
			continue
		}
		if !includeArchived && !b.IsActive {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *stubRepo) Get(_ context.Context, tenantID, id string) (Branch, error) {
	b, ok := s.branches[id]
	if !ok || b.TenantID != tenantID {
		return Branch{}, shared.ErrNotFound
	}
	return b, nil
}

func (s *stubRepo) EnsureInTenant(_ context.Context, tenantID, branchID string) error {
	b, ok := s.branches[branchID]
	if !ok || b.TenantID != tenantID || !b.IsActive {
		return shared.ErrNotFound
	}
	return nil
}

func (s *stubRepo) Create(_ context.Context, branch Branch) (Branch, error) {
	branch.ID = uuid.NewString()
	branch.IsActive = true
	s.branches[branch.ID] = branch
	return branch, nil
}

func (s *stubRepo) Update(_ context.Context, branch Branch) error {
	if _, ok := s.branches[branch.ID]; !ok {
		return shared.ErrNotFound
	}
	s.branches[branch.ID] = branch
	return nil
}

func (s *stubRepo) Archive(_ context.Context, tenantID, id string) error {
	b, ok := s.branches[id]
	if !ok || b.TenantID != tenantID {
		return shared.ErrNotFound
	}
	if !b.IsActive {
		return fmt.Errorf("%w: branch is already archived", shared.ErrValidation)
	}
	active := 0
	for _, other := range s.branches {
		if other.TenantID == tenantID && other.IsActive {
			active++
		}
	}
	if active <= 1 {
		return fmt.Errorf("%w: cannot archive the last active branch", shared.ErrValidation)
	}
	for _, u := range s.users {
		if u.scope != shared.ScopeRestricted || !u.grants[id] {
			continue
		}
		if len(u.grants) == 1 {
			return fmt.Errorf("%w: restricted user depends on this branch", shared.ErrValidation)
		}
	}
	b.IsActive = false
	s.branches[id] = b
	for _, u := range s.users {
		delete(u.grants, id)
	}
	return nil
}

func (s *stubRepo) Unarchive(_ context.Context, tenantID, id string) error {
	b, ok := s.branches[id]
	if !ok || b.TenantID != tenantID || b.IsActive {
		return shared.ErrNotFound
	}
	b.IsActive = true
	s.branches[id] = b
	return nil
}

type stubAudit struct {
	entries []audit.Entry
}

func (s *stubAudit) Observe(_ context.Context, entry audit.Entry) {
	s.entries = append(s.entries, entry)
}

func testContext() *shared.SecurityContext {
	return &shared.SecurityContext{
		SubjectID: "sub-1",
		Email:     "admin@example.org",
		TenantID:  "tenant-1",
		UserID:    "user-1",
	}
}

func seedBranch(repo *stubRepo, id, name string, active bool) {
	repo.branches[id] = Branch{ID: id, TenantID: "tenant-1", Name: name, IsActive: active}
}

func TestCreateAudits(t *testing.T) {
	repo := newStubRepo()
	auditor := &stubAudit{}
	svc := NewService(repo, auditor)

	branch, err := svc.Create(context.Background(), testContext(), CreateInput{Name: " North Campus ", Location: "12 Hill Rd"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if branch.Name != "North Campus" {
		t.Fatalf("expected trimmed name, got %q", branch.Name)
	}
	if !branch.IsActive {
		t.Fatal("new branch must start active")
	}
	if len(auditor.entries) != 1 || auditor.entries[0].Action != audit.ActionBranchCreate {
		t.Fatalf("expected branch.create audit entry, got %+v", auditor.entries)
	}
}

func TestArchiveLastActiveBranchRejected(t *testing.T) {
	repo := newStubRepo()
	seedBranch(repo, "b1", "Main Campus", true)
	svc := NewService(repo, &stubAudit{})

	err := svc.Archive(context.Background(), testContext(), "b1")
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestArchiveDependentUserScenario(t *testing.T) {
	// Tenant has branches A and B. A restricted user's only grant is A.
	// Archiving B succeeds; archiving A is rejected even though B would
	// remain active: the two checks are independent.
	repo := newStubRepo()
	auditor := &stubAudit{}
	seedBranch(repo, "branch-a", "Campus A", true)
	seedBranch(repo, "branch-b", "Campus B", true)
	repo.users["u1"] = &stubUser{scope: shared.ScopeRestricted, grants: map[string]bool{"branch-a": true}}
	svc := NewService(repo, auditor)

	if err := svc.Archive(context.Background(), testContext(), "branch-b"); err != nil {
		t.Fatalf("archive branch-b: %v", err)
	}
	err := svc.Archive(context.Background(), testContext(), "branch-a")
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error archiving branch-a, got %v", err)
	}
	if len(auditor.entries) != 1 || auditor.entries[0].Action != audit.ActionBranchArchive {
		t.Fatalf("expected single branch.archive entry, got %+v", auditor.entries)
	}
}

func TestArchiveCascadesGrantDeletion(t *testing.T) {
	repo := newStubRepo()
	seedBranch(repo, "branch-a", "Campus A", true)
	seedBranch(repo, "branch-b", "Campus B", true)
	repo.users["u1"] = &stubUser{scope: shared.ScopeRestricted, grants: map[string]bool{"branch-a": true, "branch-b": true}}
	svc := NewService(repo, &stubAudit{})

	if err := svc.Archive(context.Background(), testContext(), "branch-b"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if repo.users["u1"].grants["branch-b"] {
		t.Fatal("archived branch grant must be removed")
	}
	if !repo.users["u1"].grants["branch-a"] {
		t.Fatal("unrelated grant must survive")
	}
}

func TestUnarchiveDoesNotRestoreGrants(t *testing.T) {
	repo := newStubRepo()
	auditor := &stubAudit{}
	seedBranch(repo, "branch-a", "Campus A", true)
	seedBranch(repo, "branch-b", "Campus B", true)
	repo.users["u1"] = &stubUser{scope: shared.ScopeRestricted, grants: map[string]bool{"branch-a": true, "branch-b": true}}
	svc := NewService(repo, auditor)

	if err := svc.Archive(context.Background(), testContext(), "branch-b"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := svc.Unarchive(context.Background(), testContext(), "branch-b"); err != nil {
		t.Fatalf("unarchive: %v", err)
	}
	if repo.users["u1"].grants["branch-b"] {
		t.Fatal("unarchive must not restore deleted grants")
	}
	if !repo.branches["branch-b"].IsActive {
		t.Fatal("branch must be active after unarchive")
	}
	if len(auditor.entries) != 2 || auditor.entries[1].Action != audit.ActionBranchUnarchive {
		t.Fatalf("expected archive then unarchive entries, got %+v", auditor.entries)
	}
}

func TestUnarchiveActiveBranchRejected(t *testing.T) {
	repo := newStubRepo()
	seedBranch(repo, "b1", "Main Campus", true)
	svc := NewService(repo, &stubAudit{})

	err := svc.Unarchive(context.Background(), testContext(), "b1")
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
