package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// InitConfig creates a starter configuration file at the default location.
//
// Returns the path of the created file. When force is false and a config
// file already exists, an error is returned instead of overwriting it.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath creates a starter configuration file at an explicit
// path.
func InitConfigToPath(path string, force bool) error {
	return InitConfigToPathWithAdmin(path, force, "")
}

// InitConfigToPathWithAdmin creates a starter configuration file with the
// admin credential already set. adminPasswordHash is a bcrypt hash; empty
// leaves the admin section without a password (the API rejects logins until
// one is configured).
func InitConfigToPathWithAdmin(path string, force bool, adminPasswordHash string) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := GetDefaultConfig()

	secret, err := generateJWTSecret()
	if err != nil {
		return fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	cfg.API.JWTSecret = secret
	cfg.Admin.PasswordHash = adminPasswordHash

	body, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	content := configFileHeader + string(body)

	// 0600: the file carries the JWT secret and, after 'depositd init'
	// prompts for a password, the admin hash.
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateJWTSecret returns a 64-character hex string from 32 random bytes.
func generateJWTSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

const configFileHeader = `# depositd Configuration File
#
# Generated by 'depositd init'. Adjust the store backend and add your
# target repositories, then start the service with 'depositd start'.
#
# Environment variables with the DEPOSITD_ prefix override any value,
# e.g. DEPOSITD_LOGGING_LEVEL=DEBUG.
#
# Repository example:
#
# repositories:
#   institutional-dspace:
#     protocol: sword
#     connection:
#       auth: userpass
#       username: depositor
#       password: secret
#       extras:
#         collectionUrl: https://dspace.example.edu/swordv2/collection/123
#     packaging:
#       spec: http://purl.org/net/sword/package/METSDSpaceSIP
#       archive: zip
#       checksums: [md5, sha256]
#     status:
#       map:
#         http://dspace.org/state/archived: accepted
#         http://dspace.org/state/withdrawn: rejected

`
