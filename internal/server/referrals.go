package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/authorization"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/identity"
	referraldomain "github.com/pawtraits-dev/pawtraits-sub014/internal/referral/domain"
)

type issueReferralRequest struct {
	RefereeEmail string `json:"referee_email"`
	ReferrerID   string `json:"referrer_id"`
	ReferrerKind string `json:"referrer_kind"`
}

type signupCustomerRequest struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	ReferralCode string `json:"referral_code"`
}

// IssueReferral invites an email on behalf of the caller. Admins may name any referrer.
func (s *Server) IssueReferral(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req issueReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	referrerID := principal.EntityID
	referrerKind := referraldomain.ReferrerKind(principal.Role)
	if strings.TrimSpace(req.ReferrerID) != "" {
		id, err := parseSnowflakeID(req.ReferrerID)
		if err != nil {
			AbortWithError(c, newValidationError("referrer_id", "invalid_referrer_id", "invalid referrer_id"))
			return
		}
		referrerID = id
		if kind := strings.TrimSpace(req.ReferrerKind); kind != "" {
			referrerKind = referraldomain.ReferrerKind(kind)
		}
	}
	if err := s.authorizeOwner(c, authorization.ObjectReferral, authorization.ActionCreate, referrerID); err != nil {
		AbortWithError(c, err)
		return
	}

	referral, err := s.referralSvc.IssueInvite(c.Request.Context(), referraldomain.IssueInviteRequest{
		ReferrerID:   referrerID,
		ReferrerKind: referrerKind,
		RefereeEmail: strings.TrimSpace(req.RefereeEmail),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": referral})
}

func (s *Server) AccessReferral(c *gin.Context) {
	referral, err := s.referralSvc.MarkAccessed(c.Request.Context(), strings.TrimSpace(c.Param("code")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": referral})
}

// SignupCustomer creates the customer and, when the caller sent a user id, links that
// user's profile to the new customer.
func (s *Server) SignupCustomer(c *gin.Context) {
	var req signupCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	result, err := s.referralSvc.Signup(ctx, referraldomain.SignupRequest{
		Email:        strings.TrimSpace(req.Email),
		Name:         strings.TrimSpace(req.Name),
		ReferralCode: strings.TrimSpace(req.ReferralCode),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.linkProfile(c, identity.RoleCustomer, result.Customer.ID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) linkProfile(c *gin.Context, role identity.Role, entityID snowflake.ID) error {
	userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
	if userID == "" {
		return nil
	}
	return s.identities.Link(c.Request.Context(), userID, role, entityID, s.clock.Now())
}
