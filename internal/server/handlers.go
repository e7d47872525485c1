package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	contractdomain "github.com/viewdeal/viewdeal/internal/contract/domain"
	"github.com/viewdeal/viewdeal/internal/pricing"
	"gorm.io/datatypes"
)

type createContractRequest struct {
	LicensorID         string            `json:"licensor_id" binding:"required"`
	LicenseeID         string            `json:"licensee_id" binding:"required"`
	OriginalVideoID    string            `json:"original_video_id" binding:"required"`
	ReactionVideoID    string            `json:"reaction_video_id" binding:"required"`
	PricingModel       string            `json:"pricing_model" binding:"required"`
	PricingRate        int64             `json:"pricing_rate" binding:"required"`
	Currency           string            `json:"currency" binding:"required"`
	BillingCustomerRef string            `json:"billing_customer_ref"`
	Metadata           datatypes.JSONMap `json:"metadata"`
}

type contractResponse struct {
	ID                    string            `json:"id"`
	LicensorID            string            `json:"licensor_id"`
	LicenseeID            string            `json:"licensee_id"`
	OriginalVideoID       string            `json:"original_video_id"`
	ReactionVideoID       string            `json:"reaction_video_id"`
	PricingModel          string            `json:"pricing_model"`
	PricingRate           int64             `json:"pricing_rate"`
	Currency              string            `json:"currency"`
	Status                string            `json:"status"`
	AcceptedByLicensor    bool              `json:"accepted_by_licensor"`
	LastReportedViews     int64             `json:"last_reported_views"`
	BillingSubscriptionID *string           `json:"billing_subscription_id,omitempty"`
	Metadata              datatypes.JSONMap `json:"metadata,omitempty"`
	AcceptedAt            *time.Time        `json:"accepted_at,omitempty"`
	PaidAt                *time.Time        `json:"paid_at,omitempty"`
	RejectedAt            *time.Time        `json:"rejected_at,omitempty"`
	CancelledAt           *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

type revenueResponse struct {
	ID           string `json:"id"`
	TotalRevenue int64  `json:"total_revenue"`
}

func toContractResponse(c *contractdomain.Contract) contractResponse {
	return contractResponse{
		ID:                    c.ID.String(),
		LicensorID:            c.LicensorID.String(),
		LicenseeID:            c.LicenseeID.String(),
		OriginalVideoID:       c.OriginalVideoID,
		ReactionVideoID:       c.ReactionVideoID,
		PricingModel:          string(c.PricingModel),
		PricingRate:           c.PricingRate,
		Currency:              c.Currency,
		Status:                string(c.Status),
		AcceptedByLicensor:    c.AcceptedByLicensor,
		LastReportedViews:     c.LastReportedViews,
		BillingSubscriptionID: c.BillingSubscriptionID,
		Metadata:              c.Metadata,
		AcceptedAt:            c.AcceptedAt,
		PaidAt:                c.PaidAt,
		RejectedAt:            c.RejectedAt,
		CancelledAt:           c.CancelledAt,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
}

func (s *Server) createContract(c *gin.Context) {
	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	licensorID, err := snowflake.ParseString(req.LicensorID)
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: licensor_id", ErrInvalidRequest))
		return
	}
	licenseeID, err := snowflake.ParseString(req.LicenseeID)
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: licensee_id", ErrInvalidRequest))
		return
	}

	contract, err := s.contractSvc.Create(c.Request.Context(), contractdomain.CreateContractRequest{
		LicensorID:         licensorID,
		LicenseeID:         licenseeID,
		OriginalVideoID:    req.OriginalVideoID,
		ReactionVideoID:    req.ReactionVideoID,
		PricingModel:       pricing.Model(req.PricingModel),
		PricingRate:        req.PricingRate,
		Currency:           req.Currency,
		BillingCustomerRef: req.BillingCustomerRef,
		Metadata:           req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toContractResponse(contract))
}

func (s *Server) getContract(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	contract, err := s.contractSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContractResponse(contract))
}

func (s *Server) acceptContract(c *gin.Context) {
	s.transition(c, s.contractSvc.Accept)
}

func (s *Server) rejectContract(c *gin.Context) {
	s.transition(c, s.contractSvc.Reject)
}

func (s *Server) payContract(c *gin.Context) {
	s.transition(c, s.contractSvc.MarkPaid)
}

func (s *Server) cancelContract(c *gin.Context) {
	s.transition(c, s.contractSvc.Cancel)
}

func (s *Server) transition(c *gin.Context, fn func(ctx context.Context, id snowflake.ID) (*contractdomain.Contract, error)) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	contract, err := fn(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContractResponse(contract))
}

func (s *Server) contractRevenue(c *gin.Context) {
	s.revenueTotal(c, s.ledger.SumByContract)
}

func (s *Server) licensorRevenue(c *gin.Context) {
	s.revenueTotal(c, s.ledger.SumByLicensor)
}

func (s *Server) licenseeRevenue(c *gin.Context) {
	s.revenueTotal(c, s.ledger.SumByLicensee)
}

func (s *Server) revenueTotal(c *gin.Context, fn func(ctx context.Context, id snowflake.ID) (int64, error)) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	total, err := fn(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, revenueResponse{ID: id.String(), TotalRevenue: total})
}

func parseID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil || id == 0 {
		AbortWithError(c, fmt.Errorf("%w: id", ErrInvalidRequest))
		return 0, false
	}
	return id, true
}
