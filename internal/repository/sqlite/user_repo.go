package sqlite

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/domain"
	"gorm.io/gorm"
)

type UserRepo struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, user *domain.User) error {
	row := userRow{
		ID:           user.ID,
		Email:        user.Email,
		Name:         user.Name,
		PasswordHash: user.PasswordHash,
		AvatarURL:    user.AvatarURL,
		CreatedAt:    user.CreatedAt.UTC(),
	}
	err := r.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrEmailTaken
	}
	return err
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *UserRepo) Search(ctx context.Context, query string, excludeID uuid.UUID, limit int) ([]domain.UserRef, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	var rows []userRow
	err := r.db.WithContext(ctx).
		Where("id <> ?", excludeID).
		Where(`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')`, pattern, pattern).
		Order("name, email").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	refs := make([]domain.UserRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, domain.UserRef{ID: row.ID, Name: row.Name, Email: row.Email, AvatarURL: row.AvatarURL})
	}
	return refs, nil
}

func (r *UserRepo) first(ctx context.Context, cond string, arg any) (*domain.User, error) {
	var row userRow
	err := r.db.WithContext(ctx).Where(cond, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.User{
		ID:           row.ID,
		Email:        row.Email,
		Name:         row.Name,
		PasswordHash: row.PasswordHash,
		AvatarURL:    row.AvatarURL,
		CreatedAt:    row.CreatedAt,
	}, nil
}
