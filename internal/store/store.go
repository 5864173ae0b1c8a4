package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/seanblong/reporubric/pkg/models"
)

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("assessment not found")

const DefaultListLimit = 20

// AssessmentStore defines the methods that an assessment store must implement.
type AssessmentStore interface {
	Save(ctx context.Context, a *models.Assessment) error
	Get(ctx context.Context, id string) (models.Assessment, error)
	FindByRevision(ctx context.Context, owner, name, revisionID string) (models.Assessment, bool, error)
	List(ctx context.Context, opt ListOpts) ([]models.AssessmentSummary, error)
}

type ListOpts struct {
	RepoURL string // optional: only assessments of this repository
	Limit   int    // defaults to DefaultListLimit
}

func (o ListOpts) limit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}

// prepare assigns an id and creation time to a new assessment.
func prepare(a *models.Assessment) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// Store persists assessments in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new Store instance connected to the given database URL.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Migrate applies necessary database migrations and schema setup.
func (s *Store) Migrate(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS assessments (
  id              TEXT PRIMARY KEY,
  repo_url        TEXT NOT NULL,
  owner           TEXT NOT NULL DEFAULT '',
  name            TEXT NOT NULL,
  default_branch  TEXT NOT NULL DEFAULT '',
  commit_sha      TEXT NOT NULL,
  classification  TEXT NOT NULL,
  selected_paths  JSONB NOT NULL,
  file_digests    JSONB NOT NULL,
  rubric          JSONB NOT NULL,
  created_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS assessments_revision_idx
  ON assessments (owner, name, commit_sha, created_at DESC);

CREATE INDEX IF NOT EXISTS assessments_repo_url_idx
  ON assessments (repo_url, created_at DESC);

CREATE INDEX IF NOT EXISTS assessments_created_at_idx
  ON assessments (created_at DESC);
`
	_, err := s.pool.Exec(ctx, q)
	return err
}

// Save inserts a new assessment, assigning its id and creation time.
func (s *Store) Save(ctx context.Context, a *models.Assessment) error {
	prepare(a)
	paths, err := json.Marshal(a.SelectedPaths)
	if err != nil {
		return fmt.Errorf("encode selected paths: %w", err)
	}
	digests, err := json.Marshal(a.Digests)
	if err != nil {
		return fmt.Errorf("encode digests: %w", err)
	}
	rubric, err := json.Marshal(a.Rubric)
	if err != nil {
		return fmt.Errorf("encode rubric: %w", err)
	}

	const q = `
		INSERT INTO assessments (
			id, repo_url, owner, name, default_branch, commit_sha, classification,
			selected_paths, file_digests, rubric, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	_, err = s.pool.Exec(ctx, q,
		a.ID, a.RepoURL, a.Owner, a.Name, a.DefaultBranch, a.RevisionID, string(a.Rubric.Classification),
		paths, digests, rubric, a.CreatedAt,
	)
	return err
}

const selectAssessment = `
	SELECT id, repo_url, owner, name, default_branch, commit_sha,
	       selected_paths, file_digests, rubric, created_at
	FROM assessments`

func scanAssessment(row pgx.Row) (models.Assessment, error) {
	var a models.Assessment
	var paths, digests, rubric []byte
	if err := row.Scan(
		&a.ID, &a.RepoURL, &a.Owner, &a.Name, &a.DefaultBranch, &a.RevisionID,
		&paths, &digests, &rubric, &a.CreatedAt,
	); err != nil {
		return models.Assessment{}, err
	}
	if err := json.Unmarshal(paths, &a.SelectedPaths); err != nil {
		return models.Assessment{}, fmt.Errorf("decode selected paths: %w", err)
	}
	if err := json.Unmarshal(digests, &a.Digests); err != nil {
		return models.Assessment{}, fmt.Errorf("decode digests: %w", err)
	}
	if err := json.Unmarshal(rubric, &a.Rubric); err != nil {
		return models.Assessment{}, fmt.Errorf("decode rubric: %w", err)
	}
	return a, nil
}

// Get returns the assessment with the given id.
func (s *Store) Get(ctx context.Context, id string) (models.Assessment, error) {
	a, err := scanAssessment(s.pool.QueryRow(ctx, selectAssessment+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Assessment{}, ErrNotFound
	}
	return a, err
}

// FindByRevision returns the newest assessment of a repository revision.
func (s *Store) FindByRevision(ctx context.Context, owner, name, revisionID string) (models.Assessment, bool, error) {
	a, err := scanAssessment(s.pool.QueryRow(ctx,
		selectAssessment+` WHERE owner = $1 AND name = $2 AND commit_sha = $3 ORDER BY created_at DESC LIMIT 1`,
		owner, name, revisionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Assessment{}, false, nil
		}
		return models.Assessment{}, false, err
	}
	return a, true, nil
}

// List returns the most recent assessments, newest first.
func (s *Store) List(ctx context.Context, opt ListOpts) ([]models.AssessmentSummary, error) {
	q := `SELECT id, repo_url, owner, name, commit_sha, classification, created_at FROM assessments`
	args := []any{}
	if opt.RepoURL != "" {
		q += ` WHERE repo_url = $1`
		args = append(args, opt.RepoURL)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, opt.limit())

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.AssessmentSummary{}
	for rows.Next() {
		var a models.AssessmentSummary
		var class string
		if err := rows.Scan(&a.ID, &a.RepoURL, &a.Owner, &a.Name, &a.RevisionID, &class, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Classification = models.Classification(class)
		a.RevisionID = shortRevision(a.RevisionID)
		out = append(out, a)
	}
	return out, rows.Err()
}
