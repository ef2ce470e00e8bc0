package network

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParseAdminToken(t *testing.T) {
	// Setup
	tok, err := IssueAdminToken("s3cret", "parkpilot", "ops", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Act
	claims, err := ParseAdminToken("s3cret", tok)

	// Assert
	if err != nil || claims.Subject != "ops" || claims.Role != AdminRole {
		t.Fatalf("parse = %+v, %v", claims, err)
	}
	if _, err := ParseAdminToken("other", tok); err == nil {
		t.Error("token accepted with the wrong secret")
	}
}

func TestParseAdminTokenRejectsExpiredAndWrongRole(t *testing.T) {
	expired, _ := IssueAdminToken("s3cret", "parkpilot", "ops", -time.Minute)
	if _, err := ParseAdminToken("s3cret", expired); err == nil {
		t.Error("expired token accepted")
	}

	driver := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Role: "driver",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, _ := driver.SignedString([]byte("s3cret"))
	if _, err := ParseAdminToken("s3cret", signed); err == nil {
		t.Error("non-admin role accepted")
	}

	if _, err := IssueAdminToken("", "parkpilot", "ops", time.Hour); err == nil {
		t.Error("issued a token without a secret")
	}
}
