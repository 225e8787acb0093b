package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/pkg/errors"
)

// HMACSigner signs audit events with HMAC-SHA256 over their canonical JSON form.
type HMACSigner struct {
	key []byte
}

var _ service.EventSigner = (*HMACSigner)(nil)

// NewHMACSigner creates a signer. An empty key is a configuration error.
func NewHMACSigner(key []byte) (*HMACSigner, error) {
	if len(key) == 0 {
		return nil, errors.ErrConfiguration("audit.signing_key", "must not be empty")
	}
	return &HMACSigner{key: append([]byte(nil), key...)}, nil
}

// Sign returns the base64 encoded signature of event.
func (s *HMACSigner) Sign(event models.AuditEvent) (string, error) {
	mac, err := s.mac(event)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(mac), nil
}

// Verify reports whether event carries a valid signature.
func (s *HMACSigner) Verify(event models.AuditEvent) bool {
	got, err := base64.StdEncoding.DecodeString(event.Signature)
	if err != nil || len(got) == 0 {
		return false
	}
	want, err := s.mac(event)
	if err != nil {
		return false
	}
	return hmac.Equal(got, want)
}

func (s *HMACSigner) mac(event models.AuditEvent) ([]byte, error) {
	payload, err := event.SigningPayload()
	if err != nil {
		return nil, err
	}
	h := hmac.New(sha256.New, s.key)
	h.Write(payload)
	return h.Sum(nil), nil
}
