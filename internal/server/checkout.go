package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type quoteCheckoutRequest struct {
	Email         string `json:"email"`
	SubtotalMinor int64  `json:"subtotal_minor"`
}

func (s *Server) QuoteCheckout(c *gin.Context) {
	var req quoteCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	quote, err := s.attributionSvc.QuoteCheckout(c.Request.Context(), strings.TrimSpace(req.Email), req.SubtotalMinor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quote})
}
