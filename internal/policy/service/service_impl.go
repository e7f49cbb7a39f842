package service

import (
	"context"
	"strings"

	"github.com/careplix/opdwallet/internal/policy/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("policy.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, policyID string) (domain.Policy, error) {
	policyID = strings.TrimSpace(policyID)
	if policyID == "" {
		return domain.Policy{}, domain.ErrInvalidPolicy
	}

	policy, err := s.repo.FindByID(ctx, s.db, policyID)
	if err != nil {
		return domain.Policy{}, err
	}
	if policy == nil {
		return domain.Policy{}, domain.ErrNotFound
	}
	return *policy, nil
}
