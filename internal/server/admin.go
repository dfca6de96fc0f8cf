package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/identity"
	ledgerdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/domain"
	recondomain "github.com/pawtraits-dev/pawtraits-sub014/internal/reconciliation/domain"
	referraldomain "github.com/pawtraits-dev/pawtraits-sub014/internal/referral/domain"
	"go.uber.org/zap"
)

type registerPartnerRequest struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Code   string `json:"code"`
	UserID string `json:"user_id"`
}

type runReconciliationRequest struct {
	DryRun    bool   `json:"dry_run"`
	Since     string `json:"since"`
	BatchSize int    `json:"batch_size"`
}

// RegisterPartner creates a root referrer and, when user_id is given, the profile the
// partner signs in with.
func (s *Server) RegisterPartner(c *gin.Context) {
	var req registerPartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	kind := referraldomain.ReferrerKind(strings.TrimSpace(req.Kind))
	partner, err := s.referralSvc.RegisterPartner(ctx, referraldomain.RegisterPartnerRequest{
		Kind:  kind,
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
		Code:  strings.TrimSpace(req.Code),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if userID := strings.TrimSpace(req.UserID); userID != "" {
		if err := s.identities.Link(ctx, userID, identity.Role(kind), partner.ID, s.clock.Now()); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	s.recordAudit(ctx, "partner.registered", "referrer", partner.ID.String(), map[string]any{
		"kind": string(kind),
		"code": partner.ReferralCode,
	})
	c.JSON(http.StatusCreated, gin.H{"data": partner})
}

func (s *Server) ApproveCommission(c *gin.Context) {
	s.advanceCommission(c, ledgerdomain.EntryStatusApproved)
}

func (s *Server) PayCommission(c *gin.Context) {
	s.advanceCommission(c, ledgerdomain.EntryStatusPaid)
}

func (s *Server) advanceCommission(c *gin.Context, to ledgerdomain.EntryStatus) {
	entryID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	entry, err := s.ledgerSvc.AdvanceStatus(ctx, entryID, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(ctx, "commission."+string(to), "commission", entryID.String(), map[string]any{
		"recipient_id": entry.RecipientID.String(),
		"amount_minor": entry.CommissionAmountMinor,
	})

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) RunReconciliation(c *gin.Context) {
	var req runReconciliationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	since, err := parseOptionalTime(req.Since)
	if err != nil {
		AbortWithError(c, newValidationError("since", "invalid_since", "invalid since"))
		return
	}

	ctx := c.Request.Context()
	report, err := s.reconSvc.Run(ctx, recondomain.Options{
		DryRun:    req.DryRun,
		Since:     since,
		BatchSize: req.BatchSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !report.LockSkipped {
		s.recordAudit(ctx, "reconciliation.run", "reconciliation_run", report.RunID.String(), map[string]any{
			"dry_run": req.DryRun,
			"status":  string(report.Status()),
		})
	}

	status := http.StatusOK
	if report.LockSkipped {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"data": report})
}

func (s *Server) ListReconciliationRuns(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	n := 0
	if limit != nil {
		n = *limit
	}
	runs, err := s.reconSvc.ListRuns(c.Request.Context(), n)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs})
}

func (s *Server) GetReconciliationRun(c *gin.Context) {
	runID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	run, err := s.reconSvc.GetRun(c.Request.Context(), runID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": run})
}

func (s *Server) RenderReconciliationRun(c *gin.Context) {
	runID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	name, body, err := s.reconSvc.RenderPDF(c.Request.Context(), runID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Debug("reconciliation report rendered", zap.String("run_id", runID.String()), zap.String("file", name))
	c.DataFromReader(http.StatusOK, -1, "application/pdf", body, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, name),
	})
}
