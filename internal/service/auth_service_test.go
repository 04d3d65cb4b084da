package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"caterchat/internal/domain"
	"caterchat/internal/security"
	"caterchat/internal/service"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	return nil, nil
}

func (m *MockUserRepo) ListOnline(ctx context.Context) ([]*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *MockUserRepo) Update(ctx context.Context, u *domain.User) error {
	return nil
}

func (m *MockUserRepo) SoftDelete(ctx context.Context, id int64) error {
	return nil
}

func (m *MockUserRepo) SetOnlineStatus(ctx context.Context, userID int64, isOnline bool) error {
	args := m.Called(ctx, userID, isOnline)
	return args.Error(0)
}

func newAuthService(repo *MockUserRepo) (*service.AuthService, *security.TokenService, *security.PasswordHasher) {
	tokens := security.NewTokenService("secret", time.Hour)
	hasher := security.NewPasswordHasher(4)
	return service.NewAuthService(repo, tokens, hasher), tokens, hasher
}

func TestRegister(t *testing.T) {
	mockRepo := new(MockUserRepo)
	svc, _, _ := newAuthService(mockRepo)

	t.Run("Success", func(t *testing.T) {
		mockRepo.On("GetByUsername", mock.Anything, "newuser").Return(nil, domain.ErrNotFound)
		mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
			return u.Username == "newuser" && u.Role == domain.RoleCustomer
		})).Return(nil)

		user, err := svc.Register(context.Background(), service.RegisterInput{
			Username: "newuser",
			FullName: "Nguyễn Văn A",
			Password: "Password1!",
		})
		require.NoError(t, err)
		assert.Equal(t, "newuser", user.Username)
		assert.Equal(t, "Nguyễn Văn A", user.FullName)
		assert.NotEqual(t, "Password1!", user.HashedPassword)
	})

	t.Run("UsernameTaken", func(t *testing.T) {
		existing := &domain.User{Username: "existing"}
		mockRepo.On("GetByUsername", mock.Anything, "existing").Return(existing, nil)

		user, err := svc.Register(context.Background(), service.RegisterInput{
			Username: "existing",
			Password: "Password1!",
		})
		assert.Nil(t, user)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("ShortPassword", func(t *testing.T) {
		_, err := svc.Register(context.Background(), service.RegisterInput{
			Username: "short",
			Password: "abc",
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("UnknownRole", func(t *testing.T) {
		_, err := svc.CreateUser(context.Background(), service.RegisterInput{
			Username: "ghost",
			Password: "Password1!",
		}, domain.Role("owner"))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestLogin(t *testing.T) {
	mockRepo := new(MockUserRepo)
	svc, tokens, hasher := newAuthService(mockRepo)

	hashed, err := hasher.Hash("Password1!")
	require.NoError(t, err)
	staff := &domain.User{ID: 7, Username: "staff", Role: domain.RoleStaff, HashedPassword: hashed, IsActive: true}
	inactive := &domain.User{ID: 8, Username: "gone", HashedPassword: hashed}

	mockRepo.On("GetByUsername", mock.Anything, "staff").Return(staff, nil)
	mockRepo.On("GetByUsername", mock.Anything, "gone").Return(inactive, nil)
	mockRepo.On("GetByUsername", mock.Anything, "nobody").Return(nil, domain.ErrNotFound)

	resp, err := svc.Login(context.Background(), service.LoginInput{Username: "staff", Password: "Password1!"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	sub, err := tokens.Subject(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "staff", sub)

	_, err = svc.Login(context.Background(), service.LoginInput{Username: "staff", Password: "wrong-password"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = svc.Login(context.Background(), service.LoginInput{Username: "gone", Password: "Password1!"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = svc.Login(context.Background(), service.LoginInput{Username: "nobody", Password: "Password1!"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestUserFromToken(t *testing.T) {
	mockRepo := new(MockUserRepo)
	svc, tokens, _ := newAuthService(mockRepo)

	customer := &domain.User{ID: 3, Username: "mai", Role: domain.RoleCustomer, IsActive: true}
	mockRepo.On("GetByUsername", mock.Anything, "mai").Return(customer, nil)
	mockRepo.On("GetByUsername", mock.Anything, "deleted").Return(nil, domain.ErrNotFound)

	token, err := tokens.CreateForUser("mai")
	require.NoError(t, err)
	user, err := svc.UserFromToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(3), user.ID)

	_, err = svc.UserFromToken(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = svc.UserFromToken(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	expired, err := tokens.CreateWithTTL("mai", -time.Minute)
	require.NoError(t, err)
	_, err = svc.UserFromToken(context.Background(), expired)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	orphan, err := tokens.CreateForUser("deleted")
	require.NoError(t, err)
	_, err = svc.UserFromToken(context.Background(), orphan)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestListOnlineStaff(t *testing.T) {
	mockRepo := new(MockUserRepo)
	svc := service.NewUserService(mockRepo)

	mockRepo.On("ListOnline", mock.Anything).Return([]*domain.User{
		{ID: 1, Role: domain.RoleCustomer},
		{ID: 2, Role: domain.RoleStaff},
		{ID: 3, Role: domain.RoleAdmin},
	}, nil)

	staff, err := svc.ListOnlineStaff(context.Background())
	require.NoError(t, err)
	require.Len(t, staff, 2)
	assert.Equal(t, int64(2), staff[0].ID)
	assert.Equal(t, int64(3), staff[1].ID)
}
