package domain

import (
	"context"
	"errors"
)

type Service interface {
	Get(ctx context.Context, policyID string) (Policy, error)
}

var (
	ErrInvalidPolicy = errors.New("invalid_policy")
	ErrNotFound      = errors.New("policy_not_found")
)
