package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
// Tests inject a stub.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSStore is the Store backed by AWS Secrets Manager.
type AWSStore struct {
	client SecretsManagerAPI
}

// NewAWSStore returns a Store reading from Secrets Manager.
func NewAWSStore(client SecretsManagerAPI) *AWSStore {
	return &AWSStore{client: client}
}

// GetSecret fetches and decodes the secret called name.
func (s *AWSStore) GetSecret(ctx context.Context, name string) (Bundle, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return nil, fmt.Errorf("secrets: get %s: %w", name, err)
	}

	if out.SecretString == nil {
		return nil, fmt.Errorf("secrets: %s has no string value", name)
	}

	b, err := ParseBundle(aws.ToString(out.SecretString))
	if err != nil {
		return nil, fmt.Errorf("secrets: decode %s: %w", name, err)
	}
	return b, nil
}
