package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Fixed process-wide; the salt embedded in each digest
// makes hashes self-describing, so these can change without invalidating
// stored digests.
const (
	argonMemoryKB    uint32 = 64 * 1024
	argonTime        uint32 = 3
	argonParallelism uint8  = 2
	argonSaltLen            = 16
	argonKeyLen      uint32 = 32
)

// HashPassword derives a salted argon2id digest in PHC string format. A fresh
// salt is drawn per call.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrInvalidInput
	}

	salt := make([]byte, argonSaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemoryKB, argonParallelism, argonKeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemoryKB,
		argonTime,
		argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword recomputes the digest with the parameters and salt embedded
// in encoded and compares in constant time. A malformed digest is an error;
// a well-formed digest that does not match is (false, nil).
func VerifyPassword(password, encoded string) (bool, error) {
	params, salt, key, err := parseDigest(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt, params.time, params.memoryKB, params.parallelism, uint32(len(key)))

	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

type argonParams struct {
	memoryKB    uint32
	time        uint32
	parallelism uint8
}

func parseDigest(encoded string) (argonParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return argonParams{}, nil, nil, fmt.Errorf("malformed argon2 digest")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("malformed argon2 digest version: %w", err)
	}
	if version != argon2.Version {
		return argonParams{}, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var params argonParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memoryKB, &params.time, &params.parallelism); err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("malformed argon2 digest params: %w", err)
	}
	if params.memoryKB == 0 || params.time == 0 || params.parallelism == 0 {
		return argonParams{}, nil, nil, fmt.Errorf("malformed argon2 digest params")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("malformed argon2 digest salt: %w", err)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("malformed argon2 digest key: %w", err)
	}
	if len(salt) == 0 || len(key) == 0 {
		return argonParams{}, nil, nil, fmt.Errorf("malformed argon2 digest")
	}

	return params, salt, key, nil
}
