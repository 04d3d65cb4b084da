package service

import (
	"context"

	"caterchat/internal/domain"
)

// UserService provides user lookups and presence updates.
type UserService struct {
	users domain.UserRepository
}

func NewUserService(users domain.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	return s.users.ListActive(ctx, offset, limit)
}

// ListOnlineStaff returns staff and admin accounts with a live connection.
func (s *UserService) ListOnlineStaff(ctx context.Context) ([]*domain.User, error) {
	online, err := s.users.ListOnline(ctx)
	if err != nil {
		return nil, err
	}
	staff := online[:0]
	for _, u := range online {
		if u.Role.IsStaff() {
			staff = append(staff, u)
		}
	}
	return staff, nil
}

func (s *UserService) SetOnlineStatus(ctx context.Context, id int64, isOnline bool) error {
	return s.users.SetOnlineStatus(ctx, id, isOnline)
}
