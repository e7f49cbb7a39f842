package service

import (
	"context"
	"strings"

	"github.com/careplix/opdwallet/internal/enrollment/domain"
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
		log:  p.Log.Named("enrollment.service"),
		repo: p.Repo,
	}
}

func (s *Service) Current(ctx context.Context, memberID string) (domain.Enrollment, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return domain.Enrollment{}, domain.ErrInvalidMember
	}

	enrollment, err := s.repo.FindCurrent(ctx, s.db, memberID)
	if err != nil {
		return domain.Enrollment{}, err
	}
	if enrollment == nil {
		return domain.Enrollment{}, domain.ErrNotEnrolled
	}
	return *enrollment, nil
}
