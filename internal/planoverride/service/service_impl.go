package service

import (
	"context"
	"strings"

	"github.com/careplix/opdwallet/internal/clock"
	"github.com/careplix/opdwallet/internal/planoverride/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("planoverride.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Set(ctx context.Context, req domain.SetOverrideRequest) error {
	policyID := strings.TrimSpace(req.PolicyID)
	if policyID == "" {
		return domain.ErrInvalidPolicy
	}

	if req.PlanVersion == nil {
		if err := s.repo.Delete(ctx, s.db, policyID); err != nil {
			return err
		}
		s.log.Info("plan version override cleared", zap.String("policy_id", policyID))
		return nil
	}

	if *req.PlanVersion <= 0 {
		return domain.ErrInvalidPlanVersion
	}

	override := domain.PlanVersionOverride{
		PolicyID:    policyID,
		PlanVersion: *req.PlanVersion,
		UpdatedAt:   s.clock.Now(),
	}
	if err := s.repo.Upsert(ctx, s.db, &override); err != nil {
		return err
	}

	s.log.Info("plan version override set",
		zap.String("policy_id", policyID),
		zap.Int("plan_version", *req.PlanVersion),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, policyID string) (*int, error) {
	policyID = strings.TrimSpace(policyID)
	if policyID == "" {
		return nil, domain.ErrInvalidPolicy
	}

	override, err := s.repo.FindByPolicy(ctx, s.db, policyID)
	if err != nil {
		return nil, err
	}
	if override == nil {
		return nil, nil
	}
	version := override.PlanVersion
	return &version, nil
}
