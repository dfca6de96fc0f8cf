package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MarkOrderPaid records the payment and runs order-paid processing. Replaying it for
// an already paid order is safe and posts nothing new.
func (s *Server) MarkOrderPaid(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	paid, err := s.orderSvc.MarkPaid(ctx, orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.attributionSvc.ProcessOrderPaid(ctx, orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if paid.Transitioned {
		s.log.Info("order paid via api",
			zap.String("order_id", orderID.String()),
			zap.Bool("attributed", result.Attributed),
			zap.Bool("created", result.Created),
		)
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
