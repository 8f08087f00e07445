package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/goccy/go-json"

	"snowflake-mask-report/internal/warehouse"
	"snowflake-mask-report/pkg/types"
)

// Credentials hold the warehouse login and the masking API key
type Credentials struct {
	Account   string `json:"account"`
	User      string `json:"user"`
	Password  string `json:"password"`
	Warehouse string `json:"warehouse"`
	Role      string `json:"role"`
	Database  string `json:"database,omitempty"`
	Schema    string `json:"schema,omitempty"`
	APIKey    string `json:"api_key"`

	// LegacyAPIKey is accepted for credential files written for older
	// releases of the tool.
	LegacyAPIKey string `json:"protecto_api_key,omitempty"`
}

// SecretGetter is the part of the Secrets Manager client used here
type SecretGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ParseCredentials decodes a credentials JSON document
func ParseCredentials(data []byte) (*Credentials, error) {
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	if c.APIKey == "" {
		c.APIKey = c.LegacyAPIKey
	}
	c.LegacyAPIKey = ""
	return &c, nil
}

// LoadCredentialsFile reads credentials from a JSON file
func LoadCredentialsFile(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.Errorf(types.KindSetup, "load credentials", "credentials file not found: %s", path)
		}
		return nil, types.NewError(types.KindSetup, "load credentials", err)
	}

	c, err := ParseCredentials(data)
	if err != nil {
		return nil, types.NewError(types.KindSetup, "load credentials", err)
	}
	return c, nil
}

// NewSecretsClient creates a Secrets Manager client for region
func NewSecretsClient(ctx context.Context, region string) (*secretsmanager.Client, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, types.NewError(types.KindSetup, "load credentials", fmt.Errorf("failed to load AWS config: %w", err))
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// LoadCredentialsSecret reads credentials from a Secrets Manager secret
func LoadCredentialsSecret(ctx context.Context, client SecretGetter, secretName string) (*Credentials, error) {
	if secretName == "" {
		return nil, types.Errorf(types.KindSetup, "load credentials", "secret name is required when Secrets Manager is enabled")
	}

	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return nil, types.NewError(types.KindSetup, "load credentials", fmt.Errorf("failed to get secret %s: %w", secretName, err))
	}
	if result.SecretString == nil {
		return nil, types.Errorf(types.KindSetup, "load credentials", "secret %s has no string value", secretName)
	}

	c, err := ParseCredentials([]byte(*result.SecretString))
	if err != nil {
		return nil, types.NewError(types.KindSetup, "load credentials", err)
	}
	return c, nil
}

// LoadCredentials resolves the credentials of a run: from Secrets Manager
// when enabled, otherwise from the credentials file. A csv source may run
// without a credentials file when the API key is set in the environment.
// MASK_API_KEY overrides the key from either source.
func LoadCredentials(ctx context.Context, s *Settings, secrets SecretGetter) (*Credentials, error) {
	var (
		c   *Credentials
		err error
	)
	switch {
	case s.UseSecrets():
		if secrets == nil {
			return nil, types.Errorf(types.KindSetup, "load credentials", "no Secrets Manager client")
		}
		c, err = LoadCredentialsSecret(ctx, secrets, s.SecretName)
	case !s.WarehouseLogin() && s.MaskAPIKey != "":
		if _, statErr := os.Stat(s.CredentialsFile); os.IsNotExist(statErr) {
			c = &Credentials{}
			break
		}
		c, err = LoadCredentialsFile(s.CredentialsFile)
	default:
		c, err = LoadCredentialsFile(s.CredentialsFile)
	}
	if err != nil {
		return nil, err
	}

	if s.MaskAPIKey != "" {
		c.APIKey = s.MaskAPIKey
	}
	return c, nil
}

// Missing lists the required fields that are empty, in a fixed order.
// Only the API key is required when no warehouse login is needed.
func (c *Credentials) Missing(warehouseLogin bool) []string {
	fields := []struct {
		name  string
		value string
	}{
		{"account", c.Account},
		{"user", c.User},
		{"password", c.Password},
		{"warehouse", c.Warehouse},
		{"role", c.Role},
		{"api_key", c.APIKey},
	}
	if !warehouseLogin {
		fields = fields[len(fields)-1:]
	}

	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Validate fails when any required field is missing
func (c *Credentials) Validate(warehouseLogin bool) error {
	if missing := c.Missing(warehouseLogin); len(missing) > 0 {
		return types.Errorf(types.KindSetup, "validate credentials",
			"missing required fields in credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Snowflake returns the warehouse connection settings
func (c *Credentials) Snowflake() warehouse.SnowflakeConfig {
	return warehouse.SnowflakeConfig{
		Account:   c.Account,
		User:      c.User,
		Password:  c.Password,
		Warehouse: c.Warehouse,
		Database:  c.Database,
		Schema:    c.Schema,
		Role:      c.Role,
	}
}
