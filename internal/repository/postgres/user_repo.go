package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/hideout/internal/domain"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, name, password_hash, avatar_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		user.ID, user.Email, user.Name, user.PasswordHash, user.AvatarURL, user.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrEmailTaken
	}
	return err
}

const uniqueViolation = "23505"

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.scanUser(ctx, "SELECT id, email, name, password_hash, avatar_url, created_at FROM users WHERE id = $1", id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanUser(ctx, "SELECT id, email, name, password_hash, avatar_url, created_at FROM users WHERE email = $1", email)
}

// Search matches name or email case-insensitively, skipping excludeID.
func (r *UserRepo) Search(ctx context.Context, query string, excludeID uuid.UUID, limit int) ([]domain.UserRef, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, avatar_url
		FROM users
		WHERE id <> $1 AND (name ILIKE $2 OR email ILIKE $2)
		ORDER BY name, email
		LIMIT $3`, excludeID, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.UserRef
	for rows.Next() {
		var u domain.UserRef
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.AvatarURL); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepo) scanUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.AvatarURL, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &u, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
