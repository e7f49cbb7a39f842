package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	categoryregistry "github.com/careplix/opdwallet/internal/category/registry"
	"github.com/careplix/opdwallet/internal/clock"
	"github.com/careplix/opdwallet/internal/coverage/domain"
	obsmetrics "github.com/careplix/opdwallet/internal/observability/metrics"
	overridedomain "github.com/careplix/opdwallet/internal/planoverride/domain"
	policydomain "github.com/careplix/opdwallet/internal/policy/domain"
	"github.com/careplix/opdwallet/pkg/db"
	"github.com/careplix/opdwallet/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	Registry    *categoryregistry.Registry
	PolicySvc   policydomain.Service
	OverrideSvc overridedomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	registry    *categoryregistry.Registry
	policySvc   policydomain.Service
	overrideSvc overridedomain.Service
	obsMetrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("coverage.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		registry:    p.Registry,
		policySvc:   p.PolicySvc,
		overrideSvc: p.OverrideSvc,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) PutVersion(ctx context.Context, req domain.PutVersionRequest) (domain.CoverageMatrixEntry, error) {
	policyID := strings.TrimSpace(req.PolicyID)
	if policyID == "" {
		return domain.CoverageMatrixEntry{}, domain.ErrInvalidPolicy
	}
	if req.PlanVersion <= 0 {
		return domain.CoverageMatrixEntry{}, domain.ErrInvalidPlanVersion
	}
	if len(req.Entries) == 0 {
		return domain.CoverageMatrixEntry{}, domain.ErrInvalidEntries
	}

	// Categories are canonicalized against the registry so legacy alias
	// keys never end up persisted in the matrix.
	normalized := make(map[string]domain.CoverageDescriptor, len(req.Entries))
	for categoryID, descriptor := range req.Entries {
		category, err := s.registry.Resolve(categoryID)
		if err != nil {
			return domain.CoverageMatrixEntry{}, domain.ErrInvalidCategory
		}
		if descriptor.AnnualLimit != nil && *descriptor.AnnualLimit <= 0 {
			return domain.CoverageMatrixEntry{}, domain.ErrInvalidLimit
		}
		if descriptor.PerVisitLimit != nil && *descriptor.PerVisitLimit <= 0 {
			return domain.CoverageMatrixEntry{}, domain.ErrInvalidLimit
		}
		normalized[category.CategoryID] = descriptor
	}

	encoded, err := domain.EncodeEntries(normalized)
	if err != nil {
		return domain.CoverageMatrixEntry{}, err
	}

	entry := domain.CoverageMatrixEntry{
		ID:          s.genID.Generate(),
		PolicyID:    policyID,
		PlanVersion: req.PlanVersion,
		Entries:     encoded,
		CreatedAt:   s.clock.Now(),
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.CoverageMatrixEntry{}, domain.ErrDuplicateVersion
		}
		return domain.CoverageMatrixEntry{}, err
	}

	s.log.Info("coverage version created",
		zap.String("policy_id", policyID),
		zap.Int("plan_version", req.PlanVersion),
		zap.Int("categories", len(normalized)),
	)

	return entry, nil
}

func (s *Service) GetVersion(ctx context.Context, req domain.GetVersionRequest) (domain.CoverageMatrixEntry, error) {
	policyID := strings.TrimSpace(req.PolicyID)
	if policyID == "" {
		return domain.CoverageMatrixEntry{}, domain.ErrInvalidPolicy
	}
	if req.PlanVersion <= 0 {
		return domain.CoverageMatrixEntry{}, domain.ErrInvalidPlanVersion
	}

	entry, err := s.repo.FindByPolicyVersion(ctx, s.db, policyID, req.PlanVersion)
	if err != nil {
		return domain.CoverageMatrixEntry{}, err
	}
	if entry == nil {
		return domain.CoverageMatrixEntry{}, domain.ErrVersionNotFound
	}
	return *entry, nil
}

func (s *Service) ListVersions(ctx context.Context, req domain.ListVersionsRequest) (domain.ListVersionsResponse, error) {
	policyID := strings.TrimSpace(req.PolicyID)
	if policyID == "" {
		return domain.ListVersionsResponse{}, domain.ErrInvalidPolicy
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.ListByPolicy(ctx, s.db, policyID, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListVersionsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(entry *domain.CoverageMatrixEntry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID: strconv.Itoa(entry.PlanVersion),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	versions := make([]domain.CoverageMatrixEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		versions = append(versions, *item)
	}

	resp := domain.ListVersionsResponse{Versions: versions}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Resolve(ctx context.Context, req domain.ResolveRequest) (domain.EffectiveCoverage, error) {
	policyID := strings.TrimSpace(req.PolicyID)
	if policyID == "" {
		return domain.EffectiveCoverage{}, domain.ErrInvalidPolicy
	}

	category, err := s.registry.Resolve(req.CategoryID)
	if err != nil {
		return domain.EffectiveCoverage{}, domain.ErrInvalidCategory
	}

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}

	policy, err := s.policySvc.Get(ctx, policyID)
	if err != nil {
		if errors.Is(err, policydomain.ErrNotFound) {
			return s.noCoverage("policy_missing")
		}
		return domain.EffectiveCoverage{}, err
	}
	if !policy.ActiveAt(asOf) {
		return s.noCoverage("policy_inactive")
	}

	effectiveVersion := policy.DefaultPlanVersion
	overridden := false
	if override, err := s.overrideSvc.Get(ctx, policyID); err != nil {
		return domain.EffectiveCoverage{}, err
	} else if override != nil {
		// Override always wins over the default, regardless of which is
		// newer. There is no time travel across plan versions.
		effectiveVersion = *override
		overridden = true
	}

	entry, err := s.repo.FindByPolicyVersion(ctx, s.db, policyID, effectiveVersion)
	if err != nil {
		return domain.EffectiveCoverage{}, err
	}
	if entry == nil {
		// Fail closed: never substitute a different version.
		return s.noCoverage("version_missing")
	}

	entries, err := entry.DecodeEntries()
	if err != nil {
		return domain.EffectiveCoverage{}, err
	}

	descriptor, ok := entries[category.CategoryID]
	if !ok || !descriptor.Covered {
		return s.noCoverage("category_not_covered")
	}

	s.recordResolution(ctx, "resolved")
	return domain.EffectiveCoverage{
		PolicyID:    policyID,
		CategoryID:  category.CategoryID,
		PlanVersion: effectiveVersion,
		Overridden:  overridden,
		Descriptor:  descriptor,
	}, nil
}

func (s *Service) noCoverage(outcome string) (domain.EffectiveCoverage, error) {
	s.recordResolution(context.Background(), outcome)
	return domain.EffectiveCoverage{}, domain.ErrNoCoverage
}

func (s *Service) recordResolution(ctx context.Context, outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordCoverageResolution(ctx, outcome)
	}
}
