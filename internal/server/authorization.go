package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// authorize gates a route on the caller's role. Routes scoped to one entity also
// check ownership in the handler through authorizeOwner.
func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), principal, object, action, nil); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// authorizeOwner checks that the caller may act on owner's resources.
func (s *Server) authorizeOwner(c *gin.Context, object, action string, owner snowflake.ID) error {
	principal, ok := principalFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	return s.authzSvc.Authorize(c.Request.Context(), principal, object, action, &owner)
}
