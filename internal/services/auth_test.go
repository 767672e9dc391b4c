package services

import (
	"errors"
	"testing"
	"time"

	"github.com/huangang/codemender/internal/config"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/internal/testutil"
	"github.com/huangang/codemender/internal/utils"
)

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	return NewAuthService(testutil.NewDB(t), &config.JWTConfig{ExpireHour: 2, RefreshExpireHour: 48})
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc := newAuthService(t)

	first, err := svc.Register(&RegisterRequest{Username: "alice", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if first.Role != models.RoleAdmin {
		t.Errorf("first user role = %q, want admin", first.Role)
	}
	second, err := svc.Register(&RegisterRequest{Username: "bob", Password: "secret2"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if second.Role != models.RoleUser {
		t.Errorf("second user role = %q, want user", second.Role)
	}
	if _, err := svc.Register(&RegisterRequest{Username: "bob", Password: "other12"}); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("duplicate register err = %v", err)
	}

	pair, err := svc.Login(&LoginRequest{Username: "bob", Password: "secret2"}, "10.0.0.1", "curl")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := utils.ParseToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != second.ID || claims.Role != models.RoleUser {
		t.Errorf("claims = %+v", claims)
	}
	if pair.User == nil || pair.User.LastLogin == nil {
		t.Error("login should record last_login")
	}
	if d := pair.RefreshExpireAt.Sub(pair.AccessExpireAt); d != 46*time.Hour {
		t.Errorf("refresh outlives access by %v, want 46h", d)
	}

	if _, err := svc.Login(&LoginRequest{Username: "bob", Password: "wrong"}, "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := svc.Login(&LoginRequest{Username: "nobody", Password: "x"}, "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user err = %v", err)
	}
}

func TestAuthService_DisabledUser(t *testing.T) {
	svc := newAuthService(t)
	u, err := svc.Register(&RegisterRequest{Username: "carol", Password: "secret1"})
	if err != nil {
		t.Fatal(err)
	}
	svc.db.Model(u).Update("is_active", false)

	if _, err := svc.Login(&LoginRequest{Username: "carol", Password: "secret1"}, "", ""); !errors.Is(err, ErrUserDisabled) {
		t.Errorf("err = %v, want ErrUserDisabled", err)
	}
}

func TestAuthService_RefreshRotates(t *testing.T) {
	svc := newAuthService(t)
	if _, err := svc.Register(&RegisterRequest{Username: "dave", Password: "secret1"}); err != nil {
		t.Fatal(err)
	}
	pair, err := svc.Login(&LoginRequest{Username: "dave", Password: "secret1"}, "", "")
	if err != nil {
		t.Fatal(err)
	}

	next, err := svc.Refresh(pair.RefreshToken, "", "")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Error("refresh token was not rotated")
	}
	if _, err := svc.Refresh(pair.RefreshToken, "", ""); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("reusing a rotated token err = %v", err)
	}

	var old models.RefreshToken
	svc.db.Where("token_hash = ?", hashRefreshToken(pair.RefreshToken)).First(&old)
	if old.RevokedAt == nil || old.ReplacedByTokenID == nil {
		t.Errorf("old token not linked to replacement: %+v", old)
	}

	if err := svc.RevokeRefreshToken(next.RefreshToken); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Refresh(next.RefreshToken, "", ""); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("revoked token err = %v", err)
	}
}

func TestAuthService_RefreshExpired(t *testing.T) {
	svc := newAuthService(t)
	if _, err := svc.Register(&RegisterRequest{Username: "erin", Password: "secret1"}); err != nil {
		t.Fatal(err)
	}
	pair, err := svc.Login(&LoginRequest{Username: "erin", Password: "secret1"}, "", "")
	if err != nil {
		t.Fatal(err)
	}

	svc.now = func() time.Time { return time.Now().Add(49 * time.Hour) }
	if _, err := svc.Refresh(pair.RefreshToken, "", ""); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("expired token err = %v", err)
	}
}

func TestAuthService_ChangePassword(t *testing.T) {
	svc := newAuthService(t)
	u, err := svc.Register(&RegisterRequest{Username: "frank", Password: "secret1"})
	if err != nil {
		t.Fatal(err)
	}
	pair, err := svc.Login(&LoginRequest{Username: "frank", Password: "secret1"}, "", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.ChangePassword(u.ID, &ChangePasswordRequest{OldPassword: "nope", NewPassword: "secret2"}); !errors.Is(err, ErrIncorrectPassword) {
		t.Errorf("wrong old password err = %v", err)
	}
	if err := svc.ChangePassword(u.ID, &ChangePasswordRequest{OldPassword: "secret1", NewPassword: "secret2"}); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.Login(&LoginRequest{Username: "frank", Password: "secret2"}, "", ""); err != nil {
		t.Errorf("login with new password: %v", err)
	}
	if _, err := svc.Refresh(pair.RefreshToken, "", ""); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("refresh after password change err = %v", err)
	}
}

func TestAuthService_CreateAdminIfNotExists(t *testing.T) {
	svc := newAuthService(t)
	if err := svc.CreateAdminIfNotExists(config.AdminConfig{Username: "root", Password: "toor12"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.CreateAdminIfNotExists(config.AdminConfig{Username: "other", Password: "x"}); err != nil {
		t.Fatal(err)
	}

	var admins []models.User
	svc.db.Where("role = ?", models.RoleAdmin).Find(&admins)
	if len(admins) != 1 || admins[0].Username != "root" {
		t.Fatalf("admins = %+v", admins)
	}
	if _, err := svc.Login(&LoginRequest{Username: "root", Password: "toor12"}, "", ""); err != nil {
		t.Errorf("seeded admin cannot log in: %v", err)
	}
}
