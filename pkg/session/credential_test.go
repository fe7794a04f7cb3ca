package session

import (
	"testing"
	"time"
)

const testSecret = "test-secret-key-must-be-32-chars!"

func TestNewCredentialService_ShortSecret(t *testing.T) {
	if _, err := NewCredentialService([]byte("short"), time.Minute); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestCredentialService_IssueAndValidate(t *testing.T) {
	svc, err := NewCredentialService([]byte(testSecret), time.Minute)
	if err != nil {
		t.Fatalf("NewCredentialService failed: %v", err)
	}

	id := FromBytes([]byte("a-session-id"))
	token, err := svc.Issue(id)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	got, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !got.Equal(id) {
		t.Errorf("expected validated id %s, got %s", id, got)
	}
}

func TestCredentialService_ValidateRejectsGarbage(t *testing.T) {
	svc, err := NewCredentialService([]byte(testSecret), time.Minute)
	if err != nil {
		t.Fatalf("NewCredentialService failed: %v", err)
	}

	if _, err := svc.Validate("not-a-token"); err != ErrInvalidCredential {
		t.Errorf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestCredentialService_ValidateRejectsWrongSecret(t *testing.T) {
	issuer, err := NewCredentialService([]byte(testSecret), time.Minute)
	if err != nil {
		t.Fatalf("NewCredentialService failed: %v", err)
	}
	other, err := NewCredentialService([]byte("a-completely-different-secret!!!"), time.Minute)
	if err != nil {
		t.Fatalf("NewCredentialService failed: %v", err)
	}

	token, err := issuer.Issue(FromBytes([]byte("x")))
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := other.Validate(token); err != ErrInvalidCredential {
		t.Errorf("expected ErrInvalidCredential for mismatched secret, got %v", err)
	}
}

func TestCredentialService_ValidateRejectsExpired(t *testing.T) {
	svc, err := NewCredentialService([]byte(testSecret), time.Nanosecond)
	if err != nil {
		t.Fatalf("NewCredentialService failed: %v", err)
	}

	token, err := svc.Issue(FromBytes([]byte("x")))
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	time.Sleep(time.Millisecond)

	if _, err := svc.Validate(token); err != ErrCredentialExpired {
		t.Errorf("expected ErrCredentialExpired, got %v", err)
	}
}
