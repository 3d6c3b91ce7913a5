package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/hashicorp/vault/api"
)

// Secret keys looked up in every provider.
const (
	SecretJWT              = "jwt_secret"
	SecretSysadminPassword = "sysadmin_password"
)

// SecretManager retrieves named secrets from a provider.
type SecretManager interface {
	GetSecret(key string) (string, error)
}

// EnvSecretManager reads BROKERADMIN_SECRET_<KEY> variables.
type EnvSecretManager struct {
	lookup func(string) (string, bool)
}

func (e *EnvSecretManager) GetSecret(key string) (string, error) {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	envKey := "BROKERADMIN_SECRET_" + strings.ToUpper(key)
	value, ok := lookup(envKey)
	if !ok || value == "" {
		return "", fmt.Errorf("environment variable %s not set", envKey)
	}
	return value, nil
}

// logicalReader is the subset of the Vault client used here.
type logicalReader interface {
	Read(path string) (*api.Secret, error)
}

// VaultSecretManager reads a KV secret from HashiCorp Vault.
type VaultSecretManager struct {
	path    string
	logical logicalReader
}

func NewVaultSecretManager(cfg *Config) (*VaultSecretManager, error) {
	client, err := api.NewClient(&api.Config{
		Address: cfg.Secrets.Vault.Address,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Secrets.Vault.Token != "" {
		client.SetToken(cfg.Secrets.Vault.Token)
	} else if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
	}

	return &VaultSecretManager{path: cfg.Secrets.Vault.Path, logical: client.Logical()}, nil
}

func (v *VaultSecretManager) GetSecret(key string) (string, error) {
	path := v.path
	if path == "" {
		path = "secret/brokeradmin"
	}

	secret, err := v.logical.Read(path)
	if err != nil {
		return "", fmt.Errorf("failed to read from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret not found at path %s", path)
	}

	data := secret.Data
	// KV v2 nests the payload under "data".
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}

	value, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %s not found in Vault secret", key)
	}
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("secret value for key %s is not a string", key)
	}
	return str, nil
}

// secretValueGetter is the subset of the Secrets Manager client used here.
type secretValueGetter interface {
	GetSecretValue(input *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretManager reads a JSON object secret from AWS Secrets Manager.
type AWSSecretManager struct {
	secretID string
	client   secretValueGetter
}

func NewAWSSecretManager(cfg *Config) (*AWSSecretManager, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Secrets.AWS.Region)}
	if cfg.Secrets.AWS.AccessKey != "" && cfg.Secrets.AWS.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.Secrets.AWS.AccessKey, cfg.Secrets.AWS.SecretKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &AWSSecretManager{secretID: cfg.Secrets.AWS.SecretID, client: secretsmanager.New(sess)}, nil
}

func (a *AWSSecretManager) GetSecret(key string) (string, error) {
	secretID := a.secretID
	if secretID == "" {
		secretID = "brokeradmin/secrets"
	}

	result, err := a.client.GetSecretValue(&secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)})
	if err != nil {
		return "", fmt.Errorf("failed to get secret from AWS: %w", err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("AWS secret %s has no string value", secretID)
	}

	var secrets map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &secrets); err != nil {
		return "", fmt.Errorf("failed to parse AWS secret JSON: %w", err)
	}
	value, ok := secrets[key]
	if !ok {
		return "", fmt.Errorf("key %s not found in AWS secret", key)
	}
	return value, nil
}

// NewSecretManager creates the secret manager named by cfg.Secrets.Provider.
func NewSecretManager(cfg *Config) (SecretManager, error) {
	switch cfg.Secrets.Provider {
	case "", "env":
		return &EnvSecretManager{}, nil
	case "vault":
		return NewVaultSecretManager(cfg)
	case "aws":
		return NewAWSSecretManager(cfg)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", cfg.Secrets.Provider)
	}
}

// LoadSecrets overlays secrets from the configured provider onto cfg.
func LoadSecrets(cfg *Config) error {
	manager, err := NewSecretManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	return applySecrets(cfg, manager)
}

// applySecrets requires the JWT secret; the sysadmin password is optional.
func applySecrets(cfg *Config, manager SecretManager) error {
	jwtSecret, err := manager.GetSecret(SecretJWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT secret: %w", err)
	}
	cfg.Auth.JWTSecret = jwtSecret

	if password, err := manager.GetSecret(SecretSysadminPassword); err == nil {
		cfg.Bootstrap.SysadminPassword = password
	}
	return nil
}
