package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/authorization"
	creditdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/credit/domain"
	obslogger "github.com/pawtraits-dev/pawtraits-sub014/internal/observability/logger"
	"go.uber.org/zap"
)

type creditBalanceResponse struct {
	AvailableBalanceMinor int64 `json:"available_balance_minor"`
	Degraded              bool  `json:"degraded,omitempty"`
}

type redeemCreditsRequest struct {
	OrderID        string `json:"order_id"`
	RequestedMinor int64  `json:"requested_minor"`
}

type redeemCreditsResponse struct {
	creditdomain.RedeemResult
	Degraded bool `json:"degraded,omitempty"`
}

// GetCreditBalance never fails checkout on a store outage: it answers a zero balance
// flagged as degraded instead.
func (s *Server) GetCreditBalance(c *gin.Context) {
	customerID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authorizeOwner(c, authorization.ObjectCredit, authorization.ActionView, customerID); err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.creditSvc.GetBalance(c.Request.Context(), customerID)
	if err != nil {
		if !isStoreFailure(err) {
			AbortWithError(c, err)
			return
		}
		obslogger.WithContext(c.Request.Context(), s.log).Warn("credit balance degraded",
			zap.String("customer_id", customerID.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusOK, gin.H{"data": creditBalanceResponse{Degraded: true}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": creditBalanceResponse{AvailableBalanceMinor: balance}})
}

func (s *Server) ListCredits(c *gin.Context) {
	customerID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authorizeOwner(c, authorization.ObjectCredit, authorization.ActionView, customerID); err != nil {
		AbortWithError(c, err)
		return
	}

	credits, err := s.creditSvc.List(c.Request.Context(), customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": credits})
}

func (s *Server) RedeemCredits(c *gin.Context) {
	customerID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authorizeOwner(c, authorization.ObjectCredit, authorization.ActionRedeem, customerID); err != nil {
		AbortWithError(c, err)
		return
	}

	var req redeemCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	orderID, err := parseSnowflakeID(req.OrderID)
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "invalid order_id"))
		return
	}

	result, err := s.creditSvc.Redeem(c.Request.Context(), creditdomain.RedeemRequest{
		CustomerID:     customerID,
		OrderID:        orderID,
		RequestedMinor: req.RequestedMinor,
	})
	if err != nil {
		if !isStoreFailure(err) {
			AbortWithError(c, err)
			return
		}
		obslogger.WithContext(c.Request.Context(), s.log).Warn("credit redemption degraded",
			zap.String("customer_id", customerID.String()),
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusOK, gin.H{"data": redeemCreditsResponse{
			RedeemResult: creditdomain.RedeemResult{Consumed: []snowflake.ID{}},
			Degraded:     true,
		}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": redeemCreditsResponse{RedeemResult: result}})
}

// isStoreFailure separates infrastructure errors from domain refusals.
func isStoreFailure(err error) bool {
	status, _ := mapError(err)
	return status >= http.StatusInternalServerError
}
