// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"encoding/base64"
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/supportstack/stackctl/lib/envfile"
	"github.com/supportstack/stackctl/lib/secret"
)

func TestGenerateEntropySizes(t *testing.T) {
	material, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	tests := []struct {
		name    string
		value   string
		decode  func(string) (int, error)
		rawSize int
	}{
		{"encryption_key", material.EncryptionKey, decodeURLSafe, EncryptionKeyBytes},
		{"encryption_salt", material.EncryptionSalt, decodeHex, EncryptionSaltBytes},
		{"signing_secret", material.SigningSecret, decodeURLSafe, SigningSecretBytes},
		{"database_password", material.DatabasePassword, decodeURLSafe, DatabasePasswordBytes},
		{"admin_password", material.AdminPassword, decodeURLSafe, AdminPasswordBytes},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			size, err := test.decode(test.value)
			if err != nil {
				t.Fatalf("decoding %q: %v", test.value, err)
			}
			if size != test.rawSize {
				t.Errorf("raw size = %d bytes, want %d", size, test.rawSize)
			}
		})
	}
}

func TestGenerateNeverRepeats(t *testing.T) {
	first, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	second, err := Generate()
	if err != nil {
		t.Fatal(err)
	}

	if first.EncryptionKey == second.EncryptionKey {
		t.Error("encryption key repeated across runs")
	}
	if first.SigningSecret == second.SigningSecret {
		t.Error("signing secret repeated across runs")
	}
	if first.DatabasePassword == second.DatabasePassword {
		t.Error("database password repeated across runs")
	}
}

func TestGenerateAdminHashMatchesPassword(t *testing.T) {
	material, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(material.AdminPasswordHash), []byte(material.AdminPassword)); err != nil {
		t.Errorf("admin hash does not verify against admin password: %v", err)
	}
}

func TestAssembleContainsExpectedKeys(t *testing.T) {
	material, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	apiKey, err := secret.NewFromBytes([]byte("AIzaSyTest"))
	if err != nil {
		t.Fatal(err)
	}
	defer apiKey.Close()

	entries, err := Assemble(material, apiKey, StandardDefaults())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	byKey := entryMap(entries)
	for _, key := range []string{
		"ENVIRONMENT", "PORT", KeyAPIKey, KeyEncryptionKey, KeyEncryptionSalt,
		KeySigningSecret, KeyAdminPasswordHash, "POSTGRES_USER", KeyDatabasePassword,
		"POSTGRES_DB", "POSTGRES_HOST", "POSTGRES_PORT", "DATABASE_URL",
		"REDIS_HOST", "REDIS_PORT",
	} {
		if _, ok := byKey[key]; !ok {
			t.Errorf("missing key %s", key)
		}
	}
	if len(entries) != 15 {
		t.Errorf("entry count = %d, want 15", len(entries))
	}

	if !strings.Contains(byKey["DATABASE_URL"], material.DatabasePassword) {
		t.Error("DATABASE_URL does not embed the generated database password")
	}
	if byKey[KeyAPIKey] != "AIzaSyTest" {
		t.Errorf("%s = %q, want the supplied key", KeyAPIKey, byKey[KeyAPIKey])
	}
	// The plaintext admin password never lands in the file.
	if _, ok := byKey[KeyAdminPassword]; ok {
		t.Error("plaintext admin password written to credentials file")
	}
}

func TestAssembleRequiresAPIKey(t *testing.T) {
	material, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Assemble(material, nil, StandardDefaults()); err == nil {
		t.Error("Assemble(nil api key) = nil error, want error")
	}
}

func TestRotatePreservesAPIKeyAndDatabasePassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.production")
	original, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	apiKey, err := secret.NewFromBytes([]byte("AIzaSyOriginal"))
	if err != nil {
		t.Fatal(err)
	}
	defer apiKey.Close()

	entries, err := Assemble(original, apiKey, StandardDefaults())
	if err != nil {
		t.Fatal(err)
	}
	if err := envfile.Write(path, entries, ""); err != nil {
		t.Fatal(err)
	}

	fresh, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	source := &envfile.Source{Path: path}
	defer source.Close()

	rotated, err := Rotate(source, fresh, StandardDefaults(), true)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	byKey := entryMap(rotated)
	if byKey[KeyAPIKey] != "AIzaSyOriginal" {
		t.Error("rotation did not preserve the API key")
	}
	if byKey[KeyDatabasePassword] != original.DatabasePassword {
		t.Error("rotation did not preserve the database password")
	}
	if byKey[KeySigningSecret] == original.SigningSecret {
		t.Error("rotation did not replace the signing secret")
	}
	if byKey[KeyEncryptionKey] == original.EncryptionKey {
		t.Error("rotation did not replace the encryption key")
	}
}

func TestRotateWithoutExistingAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.production")
	if err := envfile.Write(path, []envfile.Entry{{Key: "UNRELATED", Value: "1"}}, ""); err != nil {
		t.Fatal(err)
	}
	fresh, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	source := &envfile.Source{Path: path}
	defer source.Close()

	if _, err := Rotate(source, fresh, StandardDefaults(), true); err == nil {
		t.Error("Rotate without existing API key = nil error, want error")
	}
}

func entryMap(entries []envfile.Entry) map[string]string {
	byKey := make(map[string]string, len(entries))
	for _, entry := range entries {
		byKey[entry.Key] = entry.Value
	}
	return byKey
}

func decodeURLSafe(value string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	return len(raw), err
}

func decodeHex(value string) (int, error) {
	raw, err := hex.DecodeString(value)
	return len(raw), err
}
