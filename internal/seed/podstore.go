package seed

import (
	"context"
	"fmt"
	"strings"
)

// BackendSelector matches the application pod the seeder execs into.
const BackendSelector = "app=student-mgmt-backend"

// PodExecer is the slice of cluster access the seeder needs.
type PodExecer interface {
	RunningPodName(ctx context.Context, namespace, selector string) (string, error)
	ExecInPod(ctx context.Context, namespace, pod, container string, command []string) (string, error)
}

// PodStore executes upserts against the application database from inside the
// backend pod, where the DATABASE_URL and psql are available.
type PodStore struct {
	execer    PodExecer
	namespace string
	pod       string
}

// NewPodStore resolves a running backend pod in the namespace and returns a
// store executing through it.
func NewPodStore(ctx context.Context, execer PodExecer, namespace string) (*PodStore, error) {
	pod, err := execer.RunningPodName(ctx, namespace, BackendSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to locate backend pod in %s: %w", namespace, err)
	}
	return &PodStore{execer: execer, namespace: namespace, pod: pod}, nil
}

func (s *PodStore) UpsertDepartment(ctx context.Context, d Department) error {
	return s.execSQL(ctx, DepartmentUpsertSQL(d))
}

func (s *PodStore) UpsertStudent(ctx context.Context, st Student) error {
	return s.execSQL(ctx, StudentUpsertSQL(st))
}

func (s *PodStore) execSQL(ctx context.Context, sql string) error {
	command := []string{"sh", "-c", fmt.Sprintf(`psql "$DATABASE_URL" -v ON_ERROR_STOP=1 -c %s`, shellQuote(sql))}
	output, err := s.execer.ExecInPod(ctx, s.namespace, s.pod, "", command)
	if err != nil {
		return fmt.Errorf("seed SQL failed in %s/%s: %w\n%s", s.namespace, s.pod, err, strings.TrimSpace(output))
	}
	return nil
}

// DepartmentUpsertSQL ensures the department row exists with the canonical
// description.
func DepartmentUpsertSQL(d Department) string {
	return fmt.Sprintf(
		"INSERT INTO departments (name, description) VALUES (%s, %s) "+
			"ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description;",
		sqlQuote(d.Name), sqlQuote(d.Description),
	)
}

// StudentUpsertSQL ensures the student row exists and force-corrects the name
// and Keycloak link even if a prior test run mutated them.
func StudentUpsertSQL(s Student) string {
	kcID := "NULL"
	if s.KeycloakUserID != "" {
		kcID = sqlQuote(s.KeycloakUserID)
	}
	return fmt.Sprintf(
		"INSERT INTO students (name, email, keycloak_user_id, department_id) "+
			"VALUES (%s, %s, %s, (SELECT id FROM departments WHERE name = %s)) "+
			"ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, "+
			"keycloak_user_id = EXCLUDED.keycloak_user_id, department_id = EXCLUDED.department_id;",
		sqlQuote(s.Name), sqlQuote(s.Email), kcID, sqlQuote(s.Department),
	)
}

func sqlQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func shellQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}

// NamespaceSeeder seeds one namespace end to end: locate the backend pod and
// apply the fixtures through it.
type NamespaceSeeder struct {
	execer PodExecer
}

// NewNamespaceSeeder returns a seeder using the given cluster access.
func NewNamespaceSeeder(execer PodExecer) *NamespaceSeeder {
	return &NamespaceSeeder{execer: execer}
}

// Seed applies the fixtures to the namespace's database.
func (n *NamespaceSeeder) Seed(ctx context.Context, namespace, keycloakUserID string) error {
	store, err := NewPodStore(ctx, n.execer, namespace)
	if err != nil {
		return err
	}
	return Apply(ctx, store, keycloakUserID)
}
