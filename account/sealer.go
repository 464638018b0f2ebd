package account

import (
	"encoding/base64"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/customersvc/internal/util"
)

// SecretSealer encrypts two-factor secrets at rest with AES-256-GCM. The
// client ID is bound as additional data so a sealed secret cannot be moved
// between clients.
type SecretSealer struct {
	key *memguard.Enclave
}

func NewSecretSealer(key []byte) (*SecretSealer, error) {
	if len(key) != util.AESKeySize {
		return nil, fmt.Errorf("sealing key must be %d bytes, got %d", util.AESKeySize, len(key))
	}
	return &SecretSealer{key: memguard.NewEnclave(util.CopyBytes(key))}, nil
}

func sealAAD(clientID string) []byte {
	return []byte("two-factor:" + clientID)
}

func (s *SecretSealer) Seal(clientID, secret string) (string, error) {
	key, err := s.key.Open()
	if err != nil {
		return "", fmt.Errorf("opening sealing key: %w", err)
	}
	defer key.Destroy()

	ct, err := util.EncryptAESWithAAD([]byte(secret), key.Bytes(), sealAAD(clientID))
	if err != nil {
		return "", fmt.Errorf("sealing secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

func (s *SecretSealer) Open(clientID, sealed string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decoding sealed secret: %w", err)
	}
	key, err := s.key.Open()
	if err != nil {
		return "", fmt.Errorf("opening sealing key: %w", err)
	}
	defer key.Destroy()

	pt, err := util.DecryptAESWithAAD(ct, key.Bytes(), sealAAD(clientID))
	if err != nil {
		return "", fmt.Errorf("opening secret: %w", err)
	}
	defer util.WipeBytes(pt)
	return string(pt), nil
}
