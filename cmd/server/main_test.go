package main

import (
	"context"
	"strings"
	"testing"

	"sorbo/backend/internal/config"
	"sorbo/backend/internal/store/memory"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "short"}); err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"}); err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestEnsureAdminOnlySeedsEmptyUserTable(t *testing.T) {
	ctx := context.Background()

	empty := memory.New()
	if err := ensureAdmin(ctx, empty, "short"); err == nil {
		t.Fatalf("expected a short seed password to be rejected")
	}
	if err := ensureAdmin(ctx, empty, "a-long-password"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	users, _ := empty.ListUsers(ctx)
	if len(users) != 1 || users[0].Role != "admin" || !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected one hashed admin, got %+v", users)
	}

	seeded := memory.NewSeeded()
	if err := ensureAdmin(ctx, seeded, ""); err != nil {
		t.Fatalf("expected existing users to be left alone, got %v", err)
	}
}
