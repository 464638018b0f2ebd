package account

import (
	"encoding/base64"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/customersvc/internal/util"
)

const MinPasswordSaltSize = 16

// PasswordHasher derives argon2id digests of passwords using a fixed,
// server-wide salt. The salt lives in a memguard Enclave.
type PasswordHasher struct {
	salt   *memguard.Enclave
	params util.Argon2idParams
}

// NewPasswordHasher copies salt into an enclave; the caller keeps ownership
// of the slice it passed.
func NewPasswordHasher(salt []byte, params util.Argon2idParams) (*PasswordHasher, error) {
	if len(salt) < MinPasswordSaltSize {
		return nil, fmt.Errorf("password salt must be at least %d bytes", MinPasswordSaltSize)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &PasswordHasher{
		salt:   memguard.NewEnclave(util.CopyBytes(salt)),
		params: params,
	}, nil
}

// Hash returns the base64 digest of the NFKC-normalised password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt, err := h.salt.Open()
	if err != nil {
		return "", fmt.Errorf("opening salt enclave: %w", err)
	}
	defer salt.Destroy()

	key, err := util.DeriveArgon2idKey(util.Normalize(password), salt.Bytes(), h.params)
	if err != nil {
		return "", err
	}
	defer util.WipeBytes(key)
	return base64.StdEncoding.EncodeToString(key), nil
}

// Verify reports whether password matches the stored digest.
func (h *PasswordHasher) Verify(password, digest string) (bool, error) {
	expected, err := base64.StdEncoding.DecodeString(digest)
	if err != nil {
		return false, nil
	}
	salt, err := h.salt.Open()
	if err != nil {
		return false, fmt.Errorf("opening salt enclave: %w", err)
	}
	defer salt.Destroy()
	return util.CompareArgon2idKey(util.Normalize(password), salt.Bytes(), h.params, expected)
}
