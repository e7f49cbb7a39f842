package server

import (
	"net/http"
	"strings"

	walletdomain "github.com/careplix/opdwallet/internal/wallet/domain"
	"github.com/careplix/opdwallet/pkg/db/pagination"
	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

type debitWalletRequest struct {
	MemberID       string `json:"member_id"`
	CategoryID     string `json:"category_id"`
	Amount         int64  `json:"amount"`
	ReferenceID    string `json:"reference_id"`
	IdempotencyKey string `json:"idempotency_key"`
	PreAuthRef     string `json:"pre_auth_ref"`
}

type creditWalletRequest struct {
	MemberID       string `json:"member_id"`
	CategoryID     string `json:"category_id"`
	Amount         int64  `json:"amount"`
	ReferenceID    string `json:"reference_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (s *Server) DebitWallet(c *gin.Context) {
	var req debitWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.walletSvc.Debit(c.Request.Context(), walletdomain.DebitRequest{
		MemberID:       strings.TrimSpace(req.MemberID),
		CategoryID:     strings.TrimSpace(req.CategoryID),
		Amount:         req.Amount,
		ReferenceID:    strings.TrimSpace(req.ReferenceID),
		IdempotencyKey: s.ensureIdempotencyKey(c, req.IdempotencyKey),
		PreAuthRef:     strings.TrimSpace(req.PreAuthRef),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreditWallet(c *gin.Context) {
	var req creditWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.walletSvc.Credit(c.Request.Context(), walletdomain.CreditRequest{
		MemberID:       strings.TrimSpace(req.MemberID),
		CategoryID:     strings.TrimSpace(req.CategoryID),
		Amount:         req.Amount,
		ReferenceID:    strings.TrimSpace(req.ReferenceID),
		IdempotencyKey: s.ensureIdempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReverseWalletTransaction(c *gin.Context) {
	resp, err := s.walletSvc.Reverse(c.Request.Context(), walletdomain.ReverseRequest{
		TransactionID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetWalletBalance(c *gin.Context) {
	var query struct {
		MemberID   string `form:"member_id"`
		CategoryID string `form:"category_id"`
		PlanYear   int    `form:"plan_year"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.walletSvc.GetBalance(c.Request.Context(), walletdomain.BalanceRequest{
		MemberID:   strings.TrimSpace(query.MemberID),
		CategoryID: strings.TrimSpace(query.CategoryID),
		PlanYear:   query.PlanYear,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListWalletTransactions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		MemberID   string `form:"member_id"`
		CategoryID string `form:"category_id"`
		PlanYear   int    `form:"plan_year"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.walletSvc.ListTransactions(c.Request.Context(), walletdomain.ListTransactionsRequest{
		MemberID:   strings.TrimSpace(query.MemberID),
		CategoryID: strings.TrimSpace(query.CategoryID),
		PlanYear:   query.PlanYear,
		PageToken:  query.PageToken,
		PageSize:   query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RebuildWalletBalance(c *gin.Context) {
	var req struct {
		MemberID   string `json:"member_id"`
		CategoryID string `json:"category_id"`
		PlanYear   int    `json:"plan_year"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.walletSvc.RebuildBalance(c.Request.Context(), walletdomain.BalanceRequest{
		MemberID:   strings.TrimSpace(req.MemberID),
		CategoryID: strings.TrimSpace(req.CategoryID),
		PlanYear:   req.PlanYear,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ensureIdempotencyKey prefers the client's key; a generated one still
// protects against our own transport-level retries.
func (s *Server) ensureIdempotencyKey(c *gin.Context, key string) string {
	key = strings.TrimSpace(key)
	if key != "" {
		return key
	}
	if header := strings.TrimSpace(c.GetHeader("Idempotency-Key")); header != "" {
		return header
	}
	return ulid.Make().String()
}
