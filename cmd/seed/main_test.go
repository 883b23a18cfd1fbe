package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lensai/lensai/internal/model"
)

type memStore struct {
	checkErr  error
	budgetErr error
	migrated  bool
	closed    bool
	rows      int
	gotURL    string
}

func (m *memStore) CheckConnection(context.Context) error { return m.checkErr }

func (m *memStore) id() string {
	m.rows++
	return fmt.Sprintf("id-%d", m.rows)
}

func (m *memStore) CreateUser(_ context.Context, u *model.User) error {
	u.ID = m.id()
	return nil
}

func (m *memStore) CreateProject(_ context.Context, p *model.Project) error {
	p.ID = m.id()
	return nil
}

func (m *memStore) CreateAPIKey(_ context.Context, k *model.APIKey) error {
	k.ID = m.id()
	return nil
}

func (m *memStore) CreateBudget(_ context.Context, b *model.Budget) error {
	if m.budgetErr != nil {
		return m.budgetErr
	}
	b.ID = m.id()
	return nil
}

func (m *memStore) Migrate(context.Context, fs.FS) ([]string, error) {
	m.migrated = true
	return []string{"000001_users"}, nil
}

func (m *memStore) Close() { m.closed = true }

func connectTo(s *memStore) connectFunc {
	return func(_ context.Context, url string) (store, error) {
		s.gotURL = url
		return s, nil
	}
}

func TestRun_Success(t *testing.T) {
	s := &memStore{}
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"-database-url", "postgres://u@h/db"}, &stdout, &stderr, connectTo(s))
	require.Equal(t, 0, code, stderr.String())

	assert.True(t, strings.HasPrefix(stdout.String(), "Seeding LensAI database...\n"))
	assert.Contains(t, stdout.String(), "Seed data created successfully!")
	assert.Equal(t, "postgres://u@h/db", s.gotURL)
	assert.True(t, s.migrated)
	assert.True(t, s.closed)
	assert.Equal(t, 4, s.rows)
}

func TestRun_SkipMigrate(t *testing.T) {
	s := &memStore{}
	code := run(context.Background(), []string{"-migrate=false"}, &bytes.Buffer{}, &bytes.Buffer{}, connectTo(s))
	require.Equal(t, 0, code)
	assert.False(t, s.migrated)
}

func TestRun_ConnectFailure(t *testing.T) {
	var stdout bytes.Buffer
	connect := func(context.Context, string) (store, error) {
		return nil, errors.New("dial tcp 127.0.0.1:5432: connection refused")
	}

	code := run(context.Background(), []string{"-database-url", "postgres://lensai:pw@127.0.0.1/lensai"}, &stdout, &bytes.Buffer{}, connect)
	assert.Equal(t, 1, code)

	want := "Seeding LensAI database...\n" +
		"Error connecting to database: dial tcp 127.0.0.1:5432: connection refused\n" +
		"Make sure the database is running with: make infra.up\n"
	assert.Equal(t, want, stdout.String())
}

func TestRun_ConnectFailureRedactsURL(t *testing.T) {
	var stdout bytes.Buffer
	dsn := "postgres://lensai:topsecret@db/lensai"
	connect := func(_ context.Context, url string) (store, error) {
		return nil, fmt.Errorf("cannot reach %s", url)
	}

	code := run(context.Background(), []string{"-database-url", dsn}, &stdout, &bytes.Buffer{}, connect)
	assert.Equal(t, 1, code)
	assert.NotContains(t, stdout.String(), "topsecret")
}

func TestRun_PrecheckFailure(t *testing.T) {
	s := &memStore{checkErr: errors.New("failed to query database: timeout")}
	var stdout bytes.Buffer

	code := run(context.Background(), nil, &stdout, &bytes.Buffer{}, connectTo(s))
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "Error connecting to database: failed to query database: timeout")
	assert.Contains(t, stdout.String(), "make infra.up")
	assert.Zero(t, s.rows)
	assert.False(t, s.migrated)
}

func TestRun_InsertFailure(t *testing.T) {
	s := &memStore{budgetErr: errors.New("check violation")}
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), nil, &stdout, &stderr, connectTo(s))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "create budget: check violation")
	assert.Equal(t, 3, s.rows)
}

func TestRun_BadFlag(t *testing.T) {
	code := run(context.Background(), []string{"-no-such-flag"}, &bytes.Buffer{}, &bytes.Buffer{}, connectTo(&memStore{}))
	assert.Equal(t, 2, code)
}
