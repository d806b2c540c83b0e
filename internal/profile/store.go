package profile

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists voice profiles in Postgres.
type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// List returns all voice profiles, newest first.
func (s *Store) List(ctx context.Context) ([]VoiceProfile, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, COALESCE(nickname, ''), auto_name, gender,
		       COALESCE(sample_path, ''), sample_duration_ms, color,
		       created_at, updated_at
		FROM voice_profiles
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VoiceProfile
	for rows.Next() {
		var p VoiceProfile
		if err := rows.Scan(&p.ID, &p.Nickname, &p.AutoName, &p.Gender,
			&p.SamplePath, &p.SampleDurationMs, &p.Color,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetByID retrieves a single profile.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*VoiceProfile, error) {
	var p VoiceProfile
	err := s.db.QueryRow(ctx, `
		SELECT id, COALESCE(nickname, ''), auto_name, gender,
		       COALESCE(sample_path, ''), sample_duration_ms, color,
		       created_at, updated_at
		FROM voice_profiles
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Nickname, &p.AutoName, &p.Gender,
		&p.SamplePath, &p.SampleDurationMs, &p.Color,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MatchSpeaker looks up a profile whose id equals the provider speaker id.
// Cross-session re-identification by acoustic similarity is not implemented;
// this only matches callers that pass an explicit profile id as the speaker.
func (s *Store) MatchSpeaker(ctx context.Context, speakerID string) (*VoiceProfile, error) {
	id, err := uuid.Parse(speakerID)
	if err != nil {
		return nil, nil
	}
	p, err := s.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// Apply persists a session's new-profile proposal. A dedup-eligible proposal
// updates the existing profile with the same auto name when one exists,
// keeping the longer voice sample. Every other proposal creates a new
// profile.
func (s *Store) Apply(ctx context.Context, prop Proposal) (*VoiceProfile, error) {
	if prop.SampleDurationMs > MaxSampleDurationMs {
		prop.SampleDurationMs = MaxSampleDurationMs
	}

	if prop.DedupEligible {
		existing, err := s.findByAutoName(ctx, prop.AutoName)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if prop.SampleDurationMs > existing.SampleDurationMs && prop.SamplePath != "" {
				_, err = s.db.Exec(ctx, `
					UPDATE voice_profiles
					SET sample_path = $2, sample_duration_ms = $3, updated_at = NOW()
					WHERE id = $1
				`, existing.ID, prop.SamplePath, prop.SampleDurationMs)
				if err != nil {
					return nil, err
				}
				existing.SamplePath = prop.SamplePath
				existing.SampleDurationMs = prop.SampleDurationMs
			}
			return existing, nil
		}
	}

	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM voice_profiles`).Scan(&count); err != nil {
		return nil, err
	}

	var p VoiceProfile
	err := s.db.QueryRow(ctx, `
		INSERT INTO voice_profiles (id, auto_name, gender, sample_path, sample_duration_ms, color)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		RETURNING id, COALESCE(nickname, ''), auto_name, gender,
		          COALESCE(sample_path, ''), sample_duration_ms, color,
		          created_at, updated_at
	`, uuid.New(), prop.AutoName, prop.Gender, prop.SamplePath, prop.SampleDurationMs,
		ColorFor(count)).Scan(
		&p.ID, &p.Nickname, &p.AutoName, &p.Gender,
		&p.SamplePath, &p.SampleDurationMs, &p.Color,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetNickname assigns or clears the user-facing nickname.
func (s *Store) SetNickname(ctx context.Context, id uuid.UUID, nickname string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE voice_profiles
		SET nickname = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $1
	`, id, nickname)
	return err
}

// Delete removes a profile.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM voice_profiles WHERE id = $1`, id)
	return err
}

func (s *Store) findByAutoName(ctx context.Context, autoName string) (*VoiceProfile, error) {
	var p VoiceProfile
	err := s.db.QueryRow(ctx, `
		SELECT id, COALESCE(nickname, ''), auto_name, gender,
		       COALESCE(sample_path, ''), sample_duration_ms, color,
		       created_at, updated_at
		FROM voice_profiles
		WHERE auto_name = $1
		ORDER BY created_at ASC
		LIMIT 1
	`, autoName).Scan(&p.ID, &p.Nickname, &p.AutoName, &p.Gender,
		&p.SamplePath, &p.SampleDurationMs, &p.Color,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
