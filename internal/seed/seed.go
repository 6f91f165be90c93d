// Package seed ensures the fixed reference data every E2E run depends on.
// Seeding is corrective, not just additive: the suites include a destructive
// rename test, so every run rewrites names back to their canonical values.
package seed

import (
	"context"
	"fmt"
)

// Department is one reference department row, keyed by name.
type Department struct {
	Name        string
	Description string
}

// Student is one reference student row, keyed by email.
type Student struct {
	Name           string
	Email          string
	KeycloakUserID string
	Department     string
}

// Departments returns the canonical department fixtures.
func Departments() []Department {
	return []Department{
		{Name: "Computer Science", Description: "Study of computation and information processing"},
		{Name: "Mathematics", Description: "Study of numbers, quantities, and shapes"},
		{Name: "Physics", Description: "Study of matter, energy, and their interactions"},
	}
}

// Students returns the canonical student fixtures. The first row is linked to
// the Keycloak account the E2E suite logs in with.
func Students(keycloakUserID string) []Student {
	return []Student{
		{
			Name:           "Student User",
			Email:          "student-user@example.com",
			KeycloakUserID: keycloakUserID,
			Department:     "Computer Science",
		},
		{
			Name:           "Other Student",
			Email:          "other-student@example.com",
			Department:     "Computer Science",
		},
	}
}

// Store persists fixture rows. Upserts must be keyed on the fixture's natural
// key (department name, student email) and must overwrite mutable fields.
type Store interface {
	UpsertDepartment(ctx context.Context, d Department) error
	UpsertStudent(ctx context.Context, s Student) error
}

// Apply writes all fixtures through the store. Running it any number of times
// leaves exactly the fixture rows with canonical values.
func Apply(ctx context.Context, store Store, keycloakUserID string) error {
	for _, d := range Departments() {
		if err := store.UpsertDepartment(ctx, d); err != nil {
			return fmt.Errorf("failed to seed department %q: %w", d.Name, err)
		}
	}
	for _, s := range Students(keycloakUserID) {
		if err := store.UpsertStudent(ctx, s); err != nil {
			return fmt.Errorf("failed to seed student %q: %w", s.Email, err)
		}
	}
	return nil
}
