// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/supportstack/stackctl/lib/envfile"
	"github.com/supportstack/stackctl/lib/secrets"
)

// writeTestConfig writes a minimal configuration file rooted in a temp
// directory and returns its path plus the credentials file path.
func writeTestConfig(t *testing.T) (configPath, credentialsPath string) {
	t.Helper()
	root := t.TempDir()
	credentialsPath = filepath.Join(root, ".env.production")

	contents := fmt.Sprintf(`environment: development
paths:
  root: %s
  credentials_file: %s
  backup_dir: %s
  tunnel_config: %s
  compose_file: %s
  services_manifest: %s
`, root, credentialsPath,
		filepath.Join(root, "backups"),
		filepath.Join(root, "tunnel.yml"),
		filepath.Join(root, "docker-compose.yml"),
		filepath.Join(root, "services.jsonc"))

	configPath = filepath.Join(root, "stackctl.yaml")
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return configPath, credentialsPath
}

func writeAPIKeyFile(t *testing.T, key string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apikey")
	if err := os.WriteFile(path, []byte(key+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSecretsInitWritesCredentials(t *testing.T) {
	configPath, credentialsPath := writeTestConfig(t)
	keyPath := writeAPIKeyFile(t, "AIzaSy-test-key")

	command := secretsInitCommand()
	if err := command.Execute([]string{"--config", configPath, "--api-key-file", keyPath}); err != nil {
		t.Fatalf("secrets init: %v", err)
	}

	info, err := os.Stat(credentialsPath)
	if err != nil {
		t.Fatalf("credentials file not written: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("credentials mode = %04o, want 0600", mode)
	}

	source := &envfile.Source{Path: credentialsPath}
	defer source.Close()
	if got := source.Get(secrets.KeyAPIKey); got == nil || got.String() != "AIzaSy-test-key" {
		t.Error("API key not stored")
	}
	if source.Get(secrets.KeySigningSecret) == nil {
		t.Error("signing secret not stored")
	}
	if source.Get(secrets.KeyAdminPasswordHash) == nil {
		t.Error("admin password hash not stored")
	}
}

func TestSecretsInitRefusesOverwrite(t *testing.T) {
	configPath, credentialsPath := writeTestConfig(t)
	keyPath := writeAPIKeyFile(t, "AIzaSy-test-key")

	first := secretsInitCommand()
	if err := first.Execute([]string{"--config", configPath, "--api-key-file", keyPath}); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(credentialsPath)
	if err != nil {
		t.Fatal(err)
	}

	second := secretsInitCommand()
	err = second.Execute([]string{"--config", configPath, "--api-key-file", keyPath})
	if err == nil {
		t.Fatal("second init = nil error, want refusal")
	}
	if !strings.Contains(err.Error(), "rotate") {
		t.Errorf("refusal = %q, want rotate hint", err)
	}

	after, err := os.ReadFile(credentialsPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("refused init still modified the credentials file")
	}
}

func TestSecretsRotatePreservesAPIKeyAndDatabasePassword(t *testing.T) {
	configPath, credentialsPath := writeTestConfig(t)
	keyPath := writeAPIKeyFile(t, "AIzaSy-test-key")

	if err := secretsInitCommand().Execute([]string{"--config", configPath, "--api-key-file", keyPath}); err != nil {
		t.Fatal(err)
	}

	readValues := func() map[string]string {
		source := &envfile.Source{Path: credentialsPath}
		defer source.Close()
		values := make(map[string]string)
		for _, key := range []string{secrets.KeyAPIKey, secrets.KeySigningSecret, secrets.KeyDatabasePassword} {
			if buffer := source.Get(key); buffer != nil {
				values[key] = buffer.String()
			}
		}
		return values
	}
	before := readValues()

	if err := secretsRotateCommand().Execute([]string{"--config", configPath}); err != nil {
		t.Fatalf("secrets rotate: %v", err)
	}
	after := readValues()

	if after[secrets.KeyAPIKey] != before[secrets.KeyAPIKey] {
		t.Error("rotate did not preserve the API key")
	}
	if after[secrets.KeyDatabasePassword] != before[secrets.KeyDatabasePassword] {
		t.Error("rotate did not preserve the database password")
	}
	if after[secrets.KeySigningSecret] == before[secrets.KeySigningSecret] {
		t.Error("rotate did not replace the signing secret")
	}
}

func TestSecretsRotateWithoutCredentials(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	err := secretsRotateCommand().Execute([]string{"--config", configPath})
	if err == nil || !strings.Contains(err.Error(), "secrets init") {
		t.Errorf("rotate without file = %v, want init hint", err)
	}
}

func TestSecretsSealAndUnsealRoundTrip(t *testing.T) {
	configPath, credentialsPath := writeTestConfig(t)
	keyPath := writeAPIKeyFile(t, "AIzaSy-test-key")
	if err := secretsInitCommand().Execute([]string{"--config", configPath, "--api-key-file", keyPath}); err != nil {
		t.Fatal(err)
	}

	identityPath := filepath.Join(t.TempDir(), "escrow.key")
	if err := secretsKeygenCommand().Execute([]string{"--output", identityPath}); err != nil {
		t.Fatalf("keygen: %v", err)
	}

	identity, err := os.ReadFile(identityPath)
	if err != nil {
		t.Fatal(err)
	}
	publicKey := ""
	for _, line := range strings.Split(string(identity), "\n") {
		if rest, ok := strings.CutPrefix(line, "# public key: "); ok {
			publicKey = rest
		}
	}
	if publicKey == "" {
		t.Fatal("keygen output has no public key comment")
	}

	if err := secretsSealCommand().Execute([]string{"--config", configPath, "--recipient", publicKey}); err != nil {
		t.Fatalf("seal: %v", err)
	}

	restoredPath := filepath.Join(t.TempDir(), "restored.env")
	err = secretsUnsealCommand().Execute([]string{
		"--identity-file", identityPath,
		"--output", restoredPath,
		credentialsPath + ".age",
	})
	if err != nil {
		t.Fatalf("unseal: %v", err)
	}

	original, err := os.ReadFile(credentialsPath)
	if err != nil {
		t.Fatal(err)
	}
	restored, err := os.ReadFile(restoredPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(original) != string(restored) {
		t.Error("unsealed credentials differ from the original")
	}
}
