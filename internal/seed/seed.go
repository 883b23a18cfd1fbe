// Package seed inserts a fixed development dataset: one user, one project,
// one API key and one monthly budget.
package seed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/lensai/lensai/internal/auth"
	"github.com/lensai/lensai/internal/model"
	"github.com/lensai/lensai/internal/redact"
)

// Seed values.
const (
	UserEmail         = "test@lensai.dev"
	ProjectName       = "Test Project"
	APIKeyName        = "Test API Key"
	PlaceholderPrefix = "test_"
	PlaceholderHash   = "test_hash_placeholder"
	BudgetLimitUSD    = 100.00
	BudgetPeriod      = model.PeriodMonthly
	APIKeyLifetime    = 365 * 24 * time.Hour
	ConnectionHint    = "Make sure the database is running with: make infra.up"
	StartMessage      = "Seeding LensAI database..."
	successMessage    = "Seed data created successfully!"
)

// Store is the persistence the seeder writes through.
type Store interface {
	CheckConnection(ctx context.Context) error
	CreateUser(ctx context.Context, user *model.User) error
	CreateProject(ctx context.Context, project *model.Project) error
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	CreateBudget(ctx context.Context, budget *model.Budget) error
}

// Result holds the rows created by a run.
type Result struct {
	User    *model.User
	Project *model.Project
	APIKey  *model.APIKey
	Budget  *model.Budget

	// Plaintext is set only when a real key was issued.
	Plaintext string
}

// Seeder creates the development dataset. Each insert is committed on its
// own; a failure leaves earlier rows in place.
type Seeder struct {
	store    Store
	out      io.Writer
	issueKey bool
	secrets  []string
	now      func() time.Time
}

// New returns a Seeder writing progress to out.
func New(store Store, out io.Writer) *Seeder {
	return &Seeder{store: store, out: out, now: time.Now}
}

// IssueRealKey makes the seeder store a usable lk_test_ key instead of the placeholder hash.
func (s *Seeder) IssueRealKey(enabled bool) {
	s.issueKey = enabled
}

// RedactSecrets registers values, such as the database URL, that are masked in printed errors.
func (s *Seeder) RedactSecrets(secrets ...string) {
	s.secrets = append(s.secrets, secrets...)
}

// CheckConnection runs the pre-check. On failure it prints the redacted error and the remediation hint.
func (s *Seeder) CheckConnection(ctx context.Context) error {
	if err := s.store.CheckConnection(ctx); err != nil {
		ReportConnectionError(s.out, redact.Error(err, s.secrets...))
		return err
	}
	return nil
}

// Run inserts the dataset and prints each created row followed by a summary.
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	user := &model.User{Email: UserEmail}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return res, fmt.Errorf("create user: %w", err)
	}
	res.User = user
	fmt.Fprintf(s.out, "Created user: %s (ID: %s)\n", user.Email, user.ID)

	project := &model.Project{OwnerID: user.ID, Name: ProjectName}
	if err := s.store.CreateProject(ctx, project); err != nil {
		return res, fmt.Errorf("create project: %w", err)
	}
	res.Project = project
	fmt.Fprintf(s.out, "Created project: %s (ID: %s)\n", project.Name, project.ID)

	key, plaintext, err := s.newAPIKey(project.ID)
	if err != nil {
		return res, err
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return res, fmt.Errorf("create API key: %w", err)
	}
	res.APIKey = key
	res.Plaintext = plaintext
	fmt.Fprintf(s.out, "Created API key: %s (ID: %s)\n", key.Name, key.ID)

	budget := &model.Budget{
		ProjectID: project.ID,
		LimitUSD:  BudgetLimitUSD,
		Period:    BudgetPeriod,
		HardStop:  true,
	}
	if err := s.store.CreateBudget(ctx, budget); err != nil {
		return res, fmt.Errorf("create budget: %w", err)
	}
	res.Budget = budget
	fmt.Fprintf(s.out, "Created budget: %s (ID: %s)\n", formatBudget(budget), budget.ID)

	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, successMessage)
	fmt.Fprintf(s.out, "User: %s\n", user.Email)
	fmt.Fprintf(s.out, "Project: %s\n", project.Name)
	fmt.Fprintf(s.out, "API Key: %s\n", key.Name)
	fmt.Fprintf(s.out, "Budget: %s\n", formatBudget(budget))
	if plaintext != "" {
		fmt.Fprintf(s.out, "API Key plaintext (shown once): %s\n", plaintext)
	}

	return res, nil
}

func (s *Seeder) newAPIKey(projectID string) (*model.APIKey, string, error) {
	expires := s.now().UTC().Add(APIKeyLifetime)
	key := &model.APIKey{
		ProjectID: projectID,
		Name:      APIKeyName,
		Prefix:    PlaceholderPrefix,
		Hash:      PlaceholderHash,
		ExpiresAt: &expires,
	}
	if !s.issueKey {
		return key, "", nil
	}

	generated, err := auth.GenerateAPIKey(auth.EnvTest)
	if err != nil {
		return nil, "", fmt.Errorf("generate API key: %w", err)
	}
	key.Prefix = generated.Prefix
	key.Hash = generated.Hash
	return key, generated.Plaintext, nil
}

// ReportConnectionError prints a connectivity failure followed by the remediation hint.
func ReportConnectionError(w io.Writer, msg string) {
	fmt.Fprintf(w, "Error connecting to database: %s\n", msg)
	fmt.Fprintln(w, ConnectionHint)
}

func formatBudget(b *model.Budget) string {
	return fmt.Sprintf("$%.2f %s", b.LimitUSD, b.Period)
}
