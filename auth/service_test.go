package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestService_RegisterAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:    "principal@school.example",
		Password: "supersafe",
		FullName: "Pat Principal",
		SchoolID: strPtr("sch-001"),
	}

	ctx := context.Background()
	user, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}

	if user.Email != req.Email {
		t.Fatalf("expected email %q got %q", req.Email, user.Email)
	}
	if user.Role != RoleSchoolHead {
		t.Fatalf("register: expected default role %s got %s", RoleSchoolHead, user.Role)
	}
	if user.SchoolID == nil || *user.SchoolID != "sch-001" {
		t.Fatalf("register: expected school binding, got %v", user.SchoolID)
	}

	resp, err := svc.Login(ctx, LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}
	if resp.User.ID != user.ID {
		t.Fatalf("login: expected user id %q got %q", user.ID, resp.User.ID)
	}

	tokenUserID, tokenRole, err := svc.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if tokenUserID != user.ID {
		t.Fatalf("verify token: expected %q got %q", user.ID, tokenUserID)
	}
	if tokenRole != RoleSchoolHead {
		t.Fatalf("verify token: expected role %s got %s", RoleSchoolHead, tokenRole)
	}
}

func TestService_RegisterReviewerRoles(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	for _, role := range []Role{RoleDistrictAdmin, RoleLiquidator, RoleDivisionAccountant, RoleAdmin} {
		user, err := svc.Register(context.Background(), RegisterRequest{
			Email:    fmt.Sprintf("%s@division.example", role),
			Password: "strongpassword",
			FullName: "Division Staff",
			Role:     role,
		})
		if err != nil {
			t.Fatalf("register %s: unexpected error: %v", role, err)
		}
		if user.Role != role {
			t.Fatalf("expected role %s got %s", role, user.Role)
		}
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "who@example.com",
		Password: "strongpassword",
		FullName: "Nobody",
		Role:     "janitor",
	}); err == nil {
		t.Fatal("expected invalid role error")
	}
}

func TestService_SchoolHeadRequiresSchool(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "headless@school.example",
		Password: "strongpassword",
		FullName: "No School",
		Role:     RoleSchoolHead,
	})
	if err == nil {
		t.Fatal("expected error for school head without school binding")
	}
}

func TestService_RegisterValidation(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "principal@school.example",
		Password: "short",
		FullName: "Pat Principal",
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "",
		Password: "strongpassword",
		FullName: "",
	}); err == nil {
		t.Fatal("expected validation error for missing fields")
	}
}

func TestService_DuplicateEmail(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:    "principal@school.example",
		Password: "strongpassword",
		FullName: "Pat Principal",
		SchoolID: strPtr("sch-001"),
	}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "unknown@example.com",
		Password: "irrelevant",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

type fakeRepository struct {
	usersByEmail map[string]User
	usersByID    map[string]User
	nextID       int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		usersByEmail: make(map[string]User),
		usersByID:    make(map[string]User),
		nextID:       1,
	}
}

func (f *fakeRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	if _, exists := f.usersByEmail[strings.ToLower(params.Email)]; exists {
		return User{}, ErrDuplicateEmail
	}

	id := fmt.Sprintf("user-%d", f.nextID)
	f.nextID++
	role := params.Role
	if role == "" {
		role = RoleSchoolHead
	}

	user := User{
		ID:           id,
		Email:        params.Email,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		Role:         role,
		SchoolID:     params.SchoolID,
		District:     params.District,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	f.usersByEmail[strings.ToLower(user.Email)] = user
	f.usersByID[user.ID] = user

	return user, nil
}

func (f *fakeRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, ok := f.usersByEmail[strings.ToLower(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (f *fakeRepository) GetUserByID(ctx context.Context, userID string) (User, error) {
	user, ok := f.usersByID[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}
