// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/supportstack/stackctl/cmd/stackctl/cli"
	"github.com/supportstack/stackctl/lib/envfile"
	"github.com/supportstack/stackctl/lib/sealed"
	"github.com/supportstack/stackctl/lib/secret"
	"github.com/supportstack/stackctl/lib/secrets"
)

func secretsCommand() *cli.Command {
	return &cli.Command{
		Name:    "secrets",
		Summary: "Generate and manage production credentials",
		Subcommands: []*cli.Command{
			secretsInitCommand(),
			secretsRotateCommand(),
			secretsShowCommand(),
			secretsKeygenCommand(),
			secretsSealCommand(),
			secretsUnsealCommand(),
		},
	}
}

// credentialsHeader is written at the top of the generated file.
func credentialsHeader(action string) string {
	return fmt.Sprintf("Generated by stackctl secrets %s at %s.\nDo not commit this file.",
		action, time.Now().UTC().Format(time.RFC3339))
}

// readAPIKey obtains the externally-issued AI API key: from a file or
// stdin when --api-key-file is set, otherwise via a hidden terminal
// prompt.
func readAPIKey(apiKeyFile string) (*secret.Buffer, error) {
	if apiKeyFile != "" {
		return secret.ReadFromPath(apiKeyFile)
	}
	return secret.Prompt("AI API key")
}

func secretsInitCommand() *cli.Command {
	var configPath string
	var apiKeyFile string

	return &cli.Command{
		Name:    "init",
		Summary: "Generate the production credentials file",
		Description: `Generate all deployment secrets (encryption key, salt, token-signing
secret, database password, initial admin password) from the system
CSPRNG, prompt for the externally-issued AI API key, and write the
credentials file atomically with mode 0600.

Refuses to overwrite an existing credentials file: regenerating
secrets invalidates outstanding tokens and strands the database.
Use 'stackctl secrets rotate' for an explicit rotation.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("init", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			flags.StringVar(&apiKeyFile, "api-key-file", "", "read the API key from a file, or - for stdin")
			return flags
		},
		Examples: []cli.Example{
			{Description: "Interactive bootstrap", Command: "stackctl secrets init"},
			{Description: "Scripted bootstrap", Command: "stackctl secrets init --api-key-file=- < key.txt"},
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			path := cfg.Paths.CredentialsFile
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists; use 'stackctl secrets rotate' to regenerate", path)
			}
			if err := cfg.EnsurePaths(); err != nil {
				return err
			}

			apiKey, err := readAPIKey(apiKeyFile)
			if err != nil {
				return err
			}
			defer apiKey.Close()

			material, err := secrets.Generate()
			if err != nil {
				return err
			}
			entries, err := secrets.Assemble(material, apiKey, secrets.StandardDefaults())
			if err != nil {
				return err
			}
			if err := envfile.Write(path, entries, credentialsHeader("init")); err != nil {
				return err
			}

			logger := cli.NewCommandLogger().With("command", "secrets/init")
			logger.Info("credentials written", "path", path, "keys", len(entries))

			// Shown exactly once; only the bcrypt hash is stored.
			fmt.Printf("Initial admin password: %s\n", material.AdminPassword)
			fmt.Println("Record it now; it is not recoverable from the credentials file.")
			return nil
		},
	}
}

func secretsRotateCommand() *cli.Command {
	var configPath string
	var rotateDatabasePassword bool

	return &cli.Command{
		Name:    "rotate",
		Summary: "Regenerate secrets, preserving the API key",
		Description: `Regenerate the encryption key, salt, token-signing secret, and admin
password, carrying over the externally-issued API key from the
existing credentials file. The database password is preserved by
default so the running database is not stranded; pass
--rotate-db-password when the database role will be updated too.

Rotating the signing secret invalidates every outstanding token.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("rotate", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			flags.BoolVar(&rotateDatabasePassword, "rotate-db-password", false, "also generate a new database password")
			return flags
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			path := cfg.Paths.CredentialsFile
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("no credentials file at %s; run 'stackctl secrets init' first", path)
			}

			source := &envfile.Source{Path: path}
			defer source.Close()

			material, err := secrets.Generate()
			if err != nil {
				return err
			}
			entries, err := secrets.Rotate(source, material, secrets.StandardDefaults(), !rotateDatabasePassword)
			if err != nil {
				return err
			}
			if err := envfile.Write(path, entries, credentialsHeader("rotate")); err != nil {
				return err
			}

			logger := cli.NewCommandLogger().With("command", "secrets/rotate")
			logger.Info("credentials rotated", "path", path, "database_password_rotated", rotateDatabasePassword)

			fmt.Printf("New admin password: %s\n", material.AdminPassword)
			if rotateDatabasePassword {
				fmt.Println("Database password rotated; update the database role before restarting the stack.")
			}
			return nil
		},
	}
}

func secretsShowCommand() *cli.Command {
	var configPath string
	var jsonOut bool

	return &cli.Command{
		Name:    "show",
		Summary: "List credential keys and check file permissions",
		Description: `List the keys present in the credentials file and verify its
permission bits. Values are never printed.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("show", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			flags.BoolVar(&jsonOut, "json", false, "output as JSON")
			return flags
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			path := cfg.Paths.CredentialsFile

			source := &envfile.Source{Path: path}
			defer source.Close()
			keys, err := source.Keys()
			if err != nil {
				return fmt.Errorf("reading credentials: %w", err)
			}
			permissionErr := envfile.CheckPermissions(path)

			if jsonOut {
				output := struct {
					Path          string   `json:"path"`
					Keys          []string `json:"keys"`
					PermissionsOK bool     `json:"permissions_ok"`
				}{path, keys, permissionErr == nil}
				if err := cli.WriteJSON(output); err != nil {
					return err
				}
			} else {
				fmt.Printf("%s (%d keys)\n", path, len(keys))
				for _, key := range keys {
					fmt.Printf("  %s\n", key)
				}
				if permissionErr != nil {
					fmt.Printf("\nWARNING: %v\n", permissionErr)
				}
			}

			if permissionErr != nil {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func secretsKeygenCommand() *cli.Command {
	var outputPath string

	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an escrow keypair",
		Description: `Generate an age keypair for credentials escrow. The private key is
written to the output file with mode 0600; the public key is printed
for use with 'stackctl secrets seal --recipient'.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flags.StringVar(&outputPath, "output", "", "private key output path (required)")
			return flags
		},
		Run: func(args []string) error {
			if outputPath == "" {
				return fmt.Errorf("--output is required")
			}
			if _, err := os.Stat(outputPath); err == nil {
				return fmt.Errorf("%s already exists", outputPath)
			}

			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return err
			}
			defer keypair.Close()

			contents := fmt.Sprintf("# public key: %s\n%s\n", keypair.PublicKey, keypair.PrivateKey.String())
			if err := os.WriteFile(outputPath, []byte(contents), 0o600); err != nil {
				return fmt.Errorf("writing private key: %w", err)
			}

			fmt.Printf("Public key: %s\n", keypair.PublicKey)
			fmt.Printf("Private key written to %s\n", outputPath)
			return nil
		},
	}
}

func secretsSealCommand() *cli.Command {
	var configPath string
	var recipients []string
	var outputPath string

	return &cli.Command{
		Name:    "seal",
		Summary: "Encrypt the credentials file to escrow keys",
		Description: `Encrypt the credentials file to one or more operator age public keys
so an offsite copy can be kept without exposing plaintext secrets.
Decrypt with 'stackctl secrets unseal'.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("seal", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			flags.StringArrayVar(&recipients, "recipient", nil, "age public key (repeatable, required)")
			flags.StringVar(&outputPath, "output", "", "sealed output path (default <credentials>.age)")
			return flags
		},
		Examples: []cli.Example{
			{Command: "stackctl secrets seal --recipient age1…operator"},
		},
		Run: func(args []string) error {
			if len(recipients) == 0 {
				return fmt.Errorf("at least one --recipient is required")
			}
			for _, recipient := range recipients {
				if err := sealed.ValidatePublicKey(recipient); err != nil {
					return err
				}
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			path := cfg.Paths.CredentialsFile
			if err := envfile.CheckPermissions(path); err != nil {
				return err
			}

			plaintext, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading credentials: %w", err)
			}
			defer secret.Zero(plaintext)

			ciphertext, err := sealed.Encrypt(plaintext, recipients)
			if err != nil {
				return err
			}

			if outputPath == "" {
				outputPath = path + ".age"
			}
			if err := os.WriteFile(outputPath, ciphertext, 0o600); err != nil {
				return fmt.Errorf("writing sealed credentials: %w", err)
			}

			fmt.Printf("Sealed credentials written to %s (%d recipient(s))\n", outputPath, len(recipients))
			return nil
		},
	}
}

// loadIdentity reads an escrow private key file, skipping the comment
// lines keygen writes.
func loadIdentity(path string) (*secret.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defer secret.Zero(data)

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return secret.NewFromBytes([]byte(line))
	}
	return nil, fmt.Errorf("%s contains no private key", path)
}

func secretsUnsealCommand() *cli.Command {
	var identityFile string
	var outputPath string

	return &cli.Command{
		Name:    "unseal",
		Summary: "Decrypt an escrowed credentials file",
		Description: `Decrypt a sealed credentials file with an escrow private key (from
'stackctl secrets keygen') and write the plaintext with mode 0600.`,
		Usage: "stackctl secrets unseal --identity-file <key> --output <path> <sealed-file>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("unseal", pflag.ContinueOnError)
			flags.StringVar(&identityFile, "identity-file", "", "escrow private key file (required)")
			flags.StringVar(&outputPath, "output", "", "plaintext output path (required)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one sealed file argument")
			}
			if identityFile == "" || outputPath == "" {
				return fmt.Errorf("--identity-file and --output are required")
			}
			if _, err := os.Stat(outputPath); err == nil {
				return fmt.Errorf("%s already exists; refusing to overwrite", outputPath)
			}

			privateKey, err := loadIdentity(identityFile)
			if err != nil {
				return err
			}
			defer privateKey.Close()

			ciphertext, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading sealed file: %w", err)
			}
			plaintext, err := sealed.Decrypt(ciphertext, privateKey)
			if err != nil {
				return err
			}
			defer plaintext.Close()

			if err := os.WriteFile(outputPath, plaintext.Bytes(), 0o600); err != nil {
				return fmt.Errorf("writing credentials: %w", err)
			}
			fmt.Printf("Credentials restored to %s\n", outputPath)
			return nil
		},
	}
}
