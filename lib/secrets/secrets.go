// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

// Package secrets generates the credential material a production
// deployment needs and assembles the credentials file content.
//
// Every secret is drawn independently from crypto/rand. Re-running a
// bootstrap would silently invalidate tokens signed with the old JWT
// secret, so regeneration is never implicit: Bootstrap refuses to
// produce material for an existing file unless the caller asked for a
// rotation, and rotation preserves the externally-issued API key and
// the database password by default (rotating the database password
// would strand the running database).
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/supportstack/stackctl/lib/envfile"
	"github.com/supportstack/stackctl/lib/secret"
)

// Entropy requirements, in raw bytes before encoding.
const (
	EncryptionKeyBytes    = 32
	EncryptionSaltBytes   = 16
	SigningSecretBytes    = 64
	DatabasePasswordBytes = 24
	AdminPasswordBytes    = 18
)

// Credential file keys. These match what the backend reads from its
// environment.
const (
	KeyEncryptionKey     = "ENCRYPTION_KEY"
	KeyEncryptionSalt    = "ENCRYPTION_SALT"
	KeySigningSecret     = "JWT_SECRET_KEY"
	KeyDatabasePassword  = "POSTGRES_PASSWORD"
	KeyAPIKey            = "GEMINI_API_KEY"
	KeyAdminPassword     = "ADMIN_INITIAL_PASSWORD"
	KeyAdminPasswordHash = "ADMIN_PASSWORD_HASH"
)

// Material holds one generation's worth of secret values, already
// encoded for the credentials file.
type Material struct {
	// EncryptionKey protects stored API keys at rest (URL-safe base64
	// of 32 random bytes).
	EncryptionKey string

	// EncryptionSalt is the key-derivation salt (hex of 16 random
	// bytes, matching what the backend expects).
	EncryptionSalt string

	// SigningSecret signs access tokens (URL-safe base64 of 64 random
	// bytes). Rotating it invalidates every outstanding token.
	SigningSecret string

	// DatabasePassword is the PostgreSQL role password (URL-safe
	// base64 of 24 random bytes; safe inside connection URLs).
	DatabasePassword string

	// AdminPassword is the initial dashboard admin login, shown to the
	// operator exactly once.
	AdminPassword string

	// AdminPasswordHash is the bcrypt hash of AdminPassword, which is
	// what actually lands in the credentials file.
	AdminPasswordHash string
}

// Generate draws fresh material for every secret.
func Generate() (*Material, error) {
	encryptionKey, err := randomURLSafe(EncryptionKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("generating encryption key: %w", err)
	}
	salt, err := randomHex(EncryptionSaltBytes)
	if err != nil {
		return nil, fmt.Errorf("generating encryption salt: %w", err)
	}
	signingSecret, err := randomURLSafe(SigningSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("generating signing secret: %w", err)
	}
	databasePassword, err := randomURLSafe(DatabasePasswordBytes)
	if err != nil {
		return nil, fmt.Errorf("generating database password: %w", err)
	}
	adminPassword, err := randomURLSafe(AdminPasswordBytes)
	if err != nil {
		return nil, fmt.Errorf("generating admin password: %w", err)
	}
	adminHash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing admin password: %w", err)
	}

	return &Material{
		EncryptionKey:     encryptionKey,
		EncryptionSalt:    salt,
		SigningSecret:     signingSecret,
		DatabasePassword:  databasePassword,
		AdminPassword:     adminPassword,
		AdminPasswordHash: string(adminHash),
	}, nil
}

// Defaults is the non-secret configuration written alongside the
// generated values. Keys and values match the backend's environment
// contract.
type Defaults struct {
	DatabaseUser string
	DatabaseName string
	DatabaseHost string
	DatabasePort int
	CacheHost    string
	CachePort    int
	APIPort      int
	Environment  string
}

// StandardDefaults returns the production defaults for the stack.
func StandardDefaults() Defaults {
	return Defaults{
		DatabaseUser: "neural_user",
		DatabaseName: "neural_saas_db",
		DatabaseHost: "db",
		DatabasePort: 5432,
		CacheHost:    "redis",
		CachePort:    6379,
		APIPort:      8001,
		Environment:  "production",
	}
}

// Assemble builds the full, ordered credentials file entry list from
// generated material, the externally-issued API key, and fixed
// defaults. The API key is borrowed, not closed.
func Assemble(material *Material, apiKey *secret.Buffer, defaults Defaults) ([]envfile.Entry, error) {
	if apiKey == nil || apiKey.Len() == 0 {
		return nil, fmt.Errorf("API key is required")
	}

	databaseURL := fmt.Sprintf("postgresql://%s:%s@%s:%d/%s",
		defaults.DatabaseUser, material.DatabasePassword,
		defaults.DatabaseHost, defaults.DatabasePort, defaults.DatabaseName)

	return []envfile.Entry{
		{Key: "ENVIRONMENT", Value: defaults.Environment},
		{Key: "PORT", Value: fmt.Sprintf("%d", defaults.APIPort)},
		{Key: KeyAPIKey, Value: apiKey.String()},
		{Key: KeyEncryptionKey, Value: material.EncryptionKey},
		{Key: KeyEncryptionSalt, Value: material.EncryptionSalt},
		{Key: KeySigningSecret, Value: material.SigningSecret},
		{Key: KeyAdminPasswordHash, Value: material.AdminPasswordHash},
		{Key: "POSTGRES_USER", Value: defaults.DatabaseUser},
		{Key: KeyDatabasePassword, Value: material.DatabasePassword},
		{Key: "POSTGRES_DB", Value: defaults.DatabaseName},
		{Key: "POSTGRES_HOST", Value: defaults.DatabaseHost},
		{Key: "POSTGRES_PORT", Value: fmt.Sprintf("%d", defaults.DatabasePort)},
		{Key: "DATABASE_URL", Value: databaseURL},
		{Key: "REDIS_HOST", Value: defaults.CacheHost},
		{Key: "REDIS_PORT", Value: fmt.Sprintf("%d", defaults.CachePort)},
	}, nil
}

// Rotate builds a new entry list from fresh material while carrying
// over selected values from the existing credentials file. The API key
// always carries over (it is externally issued); keepDatabasePassword
// additionally preserves POSTGRES_PASSWORD and the derived
// DATABASE_URL so the running database is not stranded.
func Rotate(existing *envfile.Source, material *Material, defaults Defaults, keepDatabasePassword bool) ([]envfile.Entry, error) {
	apiKey := existing.Get(KeyAPIKey)
	if apiKey == nil {
		if err := existing.Err(); err != nil {
			return nil, fmt.Errorf("reading existing credentials: %w", err)
		}
		return nil, fmt.Errorf("existing credentials file has no %s; run init instead", KeyAPIKey)
	}

	if keepDatabasePassword {
		if previous := existing.Get(KeyDatabasePassword); previous != nil {
			material.DatabasePassword = previous.String()
		}
	}

	return Assemble(material, apiKey, defaults)
}

// randomURLSafe returns size random bytes encoded with unpadded
// URL-safe base64.
func randomURLSafe(size int) (string, error) {
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	secret.Zero(raw)
	return encoded, nil
}

// randomHex returns size random bytes hex encoded.
func randomHex(size int) (string, error) {
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	encoded := hex.EncodeToString(raw)
	secret.Zero(raw)
	return encoded, nil
}
