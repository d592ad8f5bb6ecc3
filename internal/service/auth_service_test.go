package service

import (
	"testing"
	"time"

	"eduhub/config"
	"eduhub/internal/auth"
	"eduhub/internal/domain"
	"eduhub/internal/models"
	"eduhub/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memUsers struct {
	byID map[uint]*models.User
}

func (m *memUsers) Create(u *models.User) error {
	for _, other := range m.byID {
		if other.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	u.ID = uint(len(m.byID) + 1)
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) GetByID(id uint) (*models.User, error) {
	if u, ok := m.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) GetByEmail(email string) (*models.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) Update(u *models.User) error {
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func testAuthConfig() *config.Config {
	return &config.Config{JWT: config.JWTConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: time.Hour,
		Issuer:        "eduhub",
	}}
}

func TestAuthService_RegisterLoginRefresh(t *testing.T) {
	cfg := testAuthConfig()
	svc := NewAuthService(cfg, &memUsers{byID: map[uint]*models.User{}})

	u, access, refresh, err := svc.Register(" Dewi@Example.com ", "Dewi Lestari", "s3cret-pass", "+628111222333")
	require.NoError(t, err)
	assert.Equal(t, "dewi@example.com", u.Email)
	assert.Equal(t, domain.RoleStudent, u.Role)
	assert.NotEqual(t, "s3cret-pass", u.PasswordHash)

	claims, err := auth.ParseAccessToken(&cfg.JWT, access)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, domain.RoleStudent, claims.Role)

	_, _, _, err = svc.Register("dewi@example.com", "Someone", "x-password", "")
	assert.ErrorIs(t, err, ErrEmailExists)

	_, _, _, err = svc.Login("dewi@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCreds)
	_, _, _, err = svc.Login("nobody@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCreds)
	_, _, _, err = svc.Login("DEWI@example.com", "s3cret-pass")
	assert.NoError(t, err)

	newAccess, newRefresh, err := svc.RefreshToken(refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, newAccess)
	assert.NotEmpty(t, newRefresh)

	_, _, err = svc.RefreshToken(access)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestAuthService_ChangePassword(t *testing.T) {
	svc := NewAuthService(testAuthConfig(), &memUsers{byID: map[uint]*models.User{}})
	u, _, _, err := svc.Register("andi@example.com", "Andi", "first-pass", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(u.ID, "nope", "second-pass"), ErrInvalidCreds)
	require.NoError(t, svc.ChangePassword(u.ID, "first-pass", "second-pass"))

	_, _, _, err = svc.Login("andi@example.com", "second-pass")
	assert.NoError(t, err)
}
