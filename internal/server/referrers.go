package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/authorization"
	ledgerdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/pkg/db/pagination"
)

func (s *Server) GetAttributionReport(c *gin.Context) {
	referrerID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authorizeOwner(c, authorization.ObjectAttribution, authorization.ActionView, referrerID); err != nil {
		AbortWithError(c, err)
		return
	}

	report, err := s.attributionSvc.Report(c.Request.Context(), referrerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) ListCommissions(c *gin.Context) {
	referrerID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authorizeOwner(c, authorization.ObjectCommission, authorization.ActionView, referrerID); err != nil {
		AbortWithError(c, err)
		return
	}

	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledgerSvc.List(c.Request.Context(), ledgerdomain.ListEntriesRequest{
		RecipientID: referrerID,
		Status:      ledgerdomain.EntryStatus(strings.TrimSpace(query.Status)),
		PageToken:   query.PageToken,
		PageSize:    int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
