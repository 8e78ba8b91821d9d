package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/steepleworks/steeple/internal/audit"
	"github.com/steepleworks/steeple/internal/shared"
)

type stubRepo struct {
	roles     map[string]Role
	userCount map[string]int
}

func newStubRepo() *stubRepo {
	return &stubRepo{roles: make(map[string]Role), userCount: make(map[string]int)}
}

func (s *stubRepo) List(_ context.Context, tenantID string) ([]Role, error) {
	var out []Role
	for _, r := range s.roles {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubRepo) Get(_ context.Context, tenantID, id string) (Role, error) {
	r, ok := s.roles[id]
	if !ok || r.TenantID != tenantID {
		return Role{}, shared.ErrNotFound
	}
	return r, nil
}

func (s *stubRepo) Create(_ context.Context, role Role) (Role, error) {
	role.ID = uuid.NewString()
	s.roles[role.ID] = role
	return role, nil
}

func (s *stubRepo) Update(_ context.Context, role Role) error {
	if _, ok := s.roles[role.ID]; !ok {
		return shared.ErrNotFound
	}
	s.roles[role.ID] = role
	return nil
}

func (s *stubRepo) Delete(_ context.Context, tenantID, id string) error {
	r, ok := s.roles[id]
	if !ok || r.TenantID != tenantID {
		return shared.ErrNotFound
	}
	delete(s.roles, id)
	return nil
}

func (s *stubRepo) CountUsers(_ context.Context, roleID string) (int, error) {
	return s.userCount[roleID], nil
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

func TestCreateNormalizesPermissions(t *testing.T) {
	repo := newStubRepo()
	auditor := &stubAudit{}
	svc := NewService(repo, auditor)

	role, err := svc.Create(context.Background(), testContext(), CreateInput{
		Name:        "  Greeter  ",
		Permissions: []string{"Members.View", "members.view", "events.view"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if role.Name != "Greeter" {
		t.Fatalf("expected trimmed name, got %q", role.Name)
	}
	if len(role.Permissions) != 2 {
		t.Fatalf("expected deduplicated permissions, got %v", role.Permissions)
	}
	if role.IsSystem {
		t.Fatal("custom role must not be a system role")
	}
	if len(auditor.entries) != 1 || auditor.entries[0].Action != audit.ActionRoleCreate {
		t.Fatalf("expected role.create audit entry, got %+v", auditor.entries)
	}
}

func TestCreateRejectsUnknownPermission(t *testing.T) {
	svc := NewService(newStubRepo(), &stubAudit{})

	_, err := svc.Create(context.Background(), testContext(), CreateInput{
		Name:        "Greeter",
		Permissions: []string{"finance.embezzle"},
	})
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateSystemRoleKeepsName(t *testing.T) {
	repo := newStubRepo()
	repo.roles["r1"] = Role{ID: "r1", TenantID: "tenant-1", Name: RoleStaff, IsSystem: true, Permissions: []string{shared.PermMembersView}}
	svc := NewService(repo, &stubAudit{})

	_, err := svc.Update(context.Background(), testContext(), "r1", UpdateInput{
		Name:        "Renamed Staff",
		Permissions: []string{shared.PermMembersView},
	})
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected rename rejection, got %v", err)
	}

	role, err := svc.Update(context.Background(), testContext(), "r1", UpdateInput{
		Name:        RoleStaff,
		Permissions: []string{shared.PermMembersView, shared.PermMembersEdit},
	})
	if err != nil {
		t.Fatalf("permission edit on system role: %v", err)
	}
	if role.Name != RoleStaff {
		t.Fatalf("system role name changed to %q", role.Name)
	}
	if len(role.Permissions) != 2 {
		t.Fatalf("expected updated permissions, got %v", role.Permissions)
	}
}

func TestDeleteSystemRoleRejected(t *testing.T) {
	repo := newStubRepo()
	repo.roles["r1"] = Role{ID: "r1", TenantID: "tenant-1", Name: RoleOwner, IsSystem: true}
	svc := NewService(repo, &stubAudit{})

	err := svc.Delete(context.Background(), testContext(), "r1")
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteAssignedRoleRejected(t *testing.T) {
	repo := newStubRepo()
	repo.roles["r1"] = Role{ID: "r1", TenantID: "tenant-1", Name: "Greeter"}
	repo.userCount["r1"] = 3
	svc := NewService(repo, &stubAudit{})

	err := svc.Delete(context.Background(), testContext(), "r1")
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteCustomRole(t *testing.T) {
	repo := newStubRepo()
	auditor := &stubAudit{}
	repo.roles["r1"] = Role{ID: "r1", TenantID: "tenant-1", Name: "Greeter"}
	svc := NewService(repo, auditor)

	if err := svc.Delete(context.Background(), testContext(), "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := repo.roles["r1"]; ok {
		t.Fatal("role still present after delete")
	}
	if len(auditor.entries) != 1 || auditor.entries[0].Action != audit.ActionRoleDelete {
		t.Fatalf("expected role.delete audit entry, got %+v", auditor.entries)
	}
}

func TestSystemTemplatesCoverOwner(t *testing.T) {
	templates := SystemTemplates()
	if len(templates) != 4 {
		t.Fatalf("expected 4 system templates, got %d", len(templates))
	}
	var owner *Template
	for i := range templates {
		if templates[i].Name == RoleOwner {
			owner = &templates[i]
		}
	}
	if owner == nil {
		t.Fatal("owner template missing")
	}
	if len(owner.Permissions) != len(shared.PermissionCatalog()) {
		t.Fatalf("owner must hold the full catalog, got %v", owner.Permissions)
	}
}
