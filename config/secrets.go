package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretRef identifies a secret value from one of several sources.
// Exactly one of AwsSecretArn, EnvVar, File or InsecureValue must be set.
type SecretRef struct {
	// AwsSecretArn is the ARN of an AWS Secrets Manager secret holding a JSON
	// object. Key selects the field.
	AwsSecretArn string `yaml:"aws_secret_arn,omitempty"`
	Key          string `yaml:"key,omitempty"`

	// EnvVar is the name of an environment variable containing the secret.
	EnvVar string `yaml:"env_var,omitempty"`

	// File is a path whose trimmed content is the secret, such as a
	// docker-compose secret under /run/secrets.
	File string `yaml:"file,omitempty"`

	// InsecureValue is a plaintext secret value. Use only for development.
	InsecureValue string `yaml:"insecure_value,omitempty"`
}

// IsZero reports whether no source is configured.
func (r SecretRef) IsZero() bool {
	return r == SecretRef{}
}

// Validate checks that exactly one secret source is configured.
func (r SecretRef) Validate() error {
	sources := 0
	for _, v := range []string{r.AwsSecretArn, r.EnvVar, r.File, r.InsecureValue} {
		if v != "" {
			sources++
		}
	}

	if sources == 0 {
		return errors.New("secret ref must have one of: aws_secret_arn, env_var, file, or insecure_value")
	}
	if sources > 1 {
		return errors.New("secret ref must have only one of: aws_secret_arn, env_var, file, or insecure_value")
	}

	if r.AwsSecretArn != "" && r.Key == "" {
		return errors.New("aws_secret_arn requires key to be set")
	}

	return nil
}

// SecretsManagerClient is the subset of the AWS Secrets Manager API used
// here.
type SecretsManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretCache resolves SecretRefs, caching AWS secrets by ARN.
type SecretCache struct {
	mu     sync.Mutex
	cache  map[string]map[string]any
	client SecretsManagerClient
	newAWS func(ctx context.Context) (SecretsManagerClient, error)
}

// NewSecretCache creates a SecretCache with the given Secrets Manager client.
// A nil client is created lazily from the environment on first use.
func NewSecretCache(client SecretsManagerClient) *SecretCache {
	return &SecretCache{
		cache:  make(map[string]map[string]any),
		client: client,
		newAWS: clientFromEnv,
	}
}

func clientFromEnv(ctx context.Context) (SecretsManagerClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return secretsmanager.NewFromConfig(cfg), nil
}

// Get returns the value for ref. A zero ref resolves to the empty string so
// optional secrets can be left unset.
func (sc *SecretCache) Get(ctx context.Context, ref SecretRef) (string, error) {
	if ref.IsZero() {
		return "", nil
	}

	if err := ref.Validate(); err != nil {
		return "", err
	}

	switch {
	case ref.InsecureValue != "":
		return ref.InsecureValue, nil

	case ref.EnvVar != "":
		val, ok := os.LookupEnv(ref.EnvVar)
		if !ok {
			return "", fmt.Errorf("environment variable %q not set", ref.EnvVar)
		}

		return val, nil

	case ref.File != "":
		data, err := os.ReadFile(ref.File)
		if err != nil {
			return "", fmt.Errorf("read secret file: %w", err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if data, ok := sc.cache[ref.AwsSecretArn]; ok {
		return extractStringKey(data, ref.Key)
	}

	data, err := sc.fetchSecret(ctx, ref.AwsSecretArn)
	if err != nil {
		return "", err
	}

	sc.cache[ref.AwsSecretArn] = data

	return extractStringKey(data, ref.Key)
}

func (sc *SecretCache) fetchSecret(ctx context.Context, arn string) (map[string]any, error) {
	if sc.client == nil {
		client, err := sc.newAWS(ctx)
		if err != nil {
			return nil, err
		}

		sc.client = client
	}

	output, err := sc.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &arn,
	})
	if err != nil {
		return nil, fmt.Errorf("get secret %s: %w", arn, err)
	}

	if output.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", arn)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(*output.SecretString), &data); err != nil {
		return nil, fmt.Errorf("parse secret %s as JSON: %w", arn, err)
	}

	return data, nil
}

func extractStringKey(data map[string]any, key string) (string, error) {
	val, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret", key)
	}

	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("value at key %q is not a string (got %T)", key, val)
	}

	return str, nil
}
