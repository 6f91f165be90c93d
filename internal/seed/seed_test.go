package seed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore keeps rows keyed by their natural keys, mimicking the ON CONFLICT
// upsert semantics of the real store.
type fakeStore struct {
	departments map[string]Department
	students    map[string]Student
	failOn      string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		departments: map[string]Department{},
		students:    map[string]Student{},
	}
}

func (f *fakeStore) UpsertDepartment(ctx context.Context, d Department) error {
	if f.failOn == d.Name {
		return errors.New("simulated failure")
	}
	f.departments[d.Name] = d
	return nil
}

func (f *fakeStore) UpsertStudent(ctx context.Context, s Student) error {
	if f.failOn == s.Email {
		return errors.New("simulated failure")
	}
	f.students[s.Email] = s
	return nil
}

func TestApplyCreatesAllFixtures(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, Apply(context.Background(), store, "kc-user-1"))

	assert.Len(t, store.departments, 3)
	assert.Contains(t, store.departments, "Computer Science")
	assert.Contains(t, store.departments, "Mathematics")
	assert.Contains(t, store.departments, "Physics")

	assert.Len(t, store.students, 2)
	linked := store.students["student-user@example.com"]
	assert.Equal(t, "Student User", linked.Name)
	assert.Equal(t, "kc-user-1", linked.KeycloakUserID)
	assert.Equal(t, "Computer Science", linked.Department)
	assert.Empty(t, store.students["other-student@example.com"].KeycloakUserID)
}

func TestApplyIsIdempotent(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, Apply(context.Background(), store, "kc-user-1"))
	require.NoError(t, Apply(context.Background(), store, "kc-user-1"))

	assert.Len(t, store.departments, 3)
	assert.Len(t, store.students, 2)
}

func TestApplyCorrectsMutatedRows(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, Apply(context.Background(), store, "kc-user-1"))

	// Simulate the destructive rename the E2E suite performs.
	s := store.students["student-user@example.com"]
	s.Name = "Renamed By Test"
	store.students["student-user@example.com"] = s

	require.NoError(t, Apply(context.Background(), store, "kc-user-1"))
	assert.Equal(t, "Student User", store.students["student-user@example.com"].Name)
}

func TestApplyStopsOnFirstError(t *testing.T) {
	store := newFakeStore()
	store.failOn = "Mathematics"
	err := Apply(context.Background(), store, "kc-user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Mathematics")
	assert.Empty(t, store.students)
}

func TestDepartmentUpsertSQL(t *testing.T) {
	sql := DepartmentUpsertSQL(Department{Name: "Physics", Description: "Study of matter"})
	assert.Contains(t, sql, "INSERT INTO departments")
	assert.Contains(t, sql, "'Physics'")
	assert.Contains(t, sql, "ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description")
}

func TestStudentUpsertSQLLinked(t *testing.T) {
	sql := StudentUpsertSQL(Student{
		Name:           "Student User",
		Email:          "student-user@example.com",
		KeycloakUserID: "kc-user-1",
		Department:     "Computer Science",
	})
	assert.Contains(t, sql, "'kc-user-1'")
	assert.Contains(t, sql, "(SELECT id FROM departments WHERE name = 'Computer Science')")
	assert.Contains(t, sql, "ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name")
}

func TestStudentUpsertSQLUnlinked(t *testing.T) {
	sql := StudentUpsertSQL(Student{
		Name:       "Other Student",
		Email:      "other-student@example.com",
		Department: "Computer Science",
	})
	assert.Contains(t, sql, "NULL")
	assert.NotContains(t, sql, "''")
}

func TestSQLQuoteEscapesSingleQuotes(t *testing.T) {
	sql := DepartmentUpsertSQL(Department{Name: "O'Brien Hall", Description: "x"})
	assert.Contains(t, sql, "'O''Brien Hall'")
}

// fakeExecer records the commands PodStore runs in the backend pod.
type fakeExecer struct {
	pod      string
	podErr   error
	commands [][]string
}

func (f *fakeExecer) RunningPodName(ctx context.Context, namespace, selector string) (string, error) {
	if f.podErr != nil {
		return "", f.podErr
	}
	return f.pod, nil
}

func (f *fakeExecer) ExecInPod(ctx context.Context, namespace, pod, container string, command []string) (string, error) {
	f.commands = append(f.commands, command)
	return "", nil
}

func TestNamespaceSeederExecsSQLInBackendPod(t *testing.T) {
	execer := &fakeExecer{pod: "backend-abc123"}
	seeder := NewNamespaceSeeder(execer)
	require.NoError(t, seeder.Seed(context.Background(), "student-mgmt-dev", "kc-user-1"))

	// Three departments plus two students.
	require.Len(t, execer.commands, 5)
	for _, cmd := range execer.commands {
		require.Len(t, cmd, 3)
		assert.Equal(t, "sh", cmd[0])
		assert.Contains(t, cmd[2], `psql "$DATABASE_URL"`)
		assert.Contains(t, cmd[2], "ON_ERROR_STOP=1")
	}
}

func TestNamespaceSeederFailsWithoutBackendPod(t *testing.T) {
	execer := &fakeExecer{podErr: errors.New("no running pod")}
	seeder := NewNamespaceSeeder(execer)
	err := seeder.Seed(context.Background(), "student-mgmt-dev", "kc-user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "student-mgmt-dev")
}
