// Package secrets resolves the CI provider token from the environment or
// AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// ErrNoToken is returned when no token source yields a value.
var ErrNoToken = errors.New("no provider token configured")

// TokenEnvVars are checked in order before falling back to Secrets Manager.
var TokenEnvVars = []string{"GITHUB_TOKEN", "GH_TOKEN"}

// SecretsAPI is the subset of the Secrets Manager client used by Resolver.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, input *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver looks up the provider token.
type Resolver struct {
	client SecretsAPI
	getenv func(string) string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSecretsClient sets a custom Secrets Manager client.
func WithSecretsClient(c SecretsAPI) Option {
	return func(r *Resolver) { r.client = c }
}

// WithGetenv replaces os.Getenv.
func WithGetenv(fn func(string) string) Option {
	return func(r *Resolver) { r.getenv = fn }
}

// NewResolver creates a token resolver. The Secrets Manager client is
// created lazily, only when a secret ARN has to be read.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{getenv: os.Getenv}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Token returns, in order of precedence: the explicit token, the first
// non-empty token environment variable, or the value of secretARN. A secret
// holding a JSON object is read from its "token" or "github_token" key.
func (r *Resolver) Token(ctx context.Context, explicit, secretARN string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, name := range TokenEnvVars {
		if v := strings.TrimSpace(r.getenv(name)); v != "" {
			return v, nil
		}
	}
	if secretARN == "" {
		return "", ErrNoToken
	}

	if r.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return "", fmt.Errorf("loading AWS config: %w", err)
		}
		r.client = secretsmanager.NewFromConfig(cfg)
	}

	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return "", fmt.Errorf("reading secret %s: %w", secretARN, err)
	}
	return parseSecret(aws.ToString(out.SecretString))
}

func parseSecret(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNoToken
	}
	if !strings.HasPrefix(raw, "{") {
		return raw, nil
	}

	var obj map[string]string
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return "", fmt.Errorf("parsing secret JSON: %w", err)
	}
	for _, key := range []string{"token", "github_token"} {
		if v := obj[key]; v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("secret JSON has no token key: %w", ErrNoToken)
}
