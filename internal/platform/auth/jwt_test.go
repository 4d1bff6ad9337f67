package auth

import (
	"testing"
	"time"

	"praxis/internal/platform/config"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "s3cret", AccessTokenTTL: time.Minute})

	token, err := svc.GenerateAccessToken("usr_1", "org_1", "owner", "a@clinic.test")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.OrganizationID != "org_1" || claims.Role != "owner" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.IsPlatformAdmin() {
		t.Error("owner must not be a platform admin")
	}
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "s3cret", AccessTokenTTL: time.Minute})
	other := NewTokenService(config.JWTConfig{Secret: "other", AccessTokenTTL: time.Minute})

	foreign, _ := other.GenerateAccessToken("usr_1", "org_1", "owner", "a@clinic.test")

	expiredSvc := NewTokenService(config.JWTConfig{Secret: "s3cret", AccessTokenTTL: time.Minute})
	expiredSvc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _ := expiredSvc.GenerateAccessToken("usr_1", "org_1", "owner", "a@clinic.test")

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"expired", expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ValidateToken(tt.token); err == nil {
				t.Error("ValidateToken() expected error")
			}
		})
	}
}
