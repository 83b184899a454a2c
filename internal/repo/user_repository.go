package repo

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"Parley/internal/model"
)

// UserRepository reads the relational user directory. Chat never writes
// this table.
type UserRepository interface {
	ListPage(ctx context.Context, exclude, search string, page, perPage int, paginate bool) ([]model.User, int64, error)
}

type userRepository struct {
	gdb *gorm.DB
}

func NewUserRepository(gdb *gorm.DB) UserRepository {
	return &userRepository{gdb: gdb}
}

// ListPage returns one directory page excluding the caller, with an
// optional case-insensitive substring match on email, plus the total count
// for the same filter.
func (r *userRepository) ListPage(ctx context.Context, exclude, search string, page, perPage int, paginate bool) ([]model.User, int64, error) {
	query := r.gdb.WithContext(ctx).Model(&model.User{}).Where("email <> ?", exclude)
	if search != "" {
		query = query.Where("lower(email) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	if paginate {
		if page < 1 {
			page = 1
		}
		if perPage < 1 {
			perPage = 10
		}
		query = query.Offset((page - 1) * perPage).Limit(perPage)
	}

	var users []model.User
	if err := query.Order("id").Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}
