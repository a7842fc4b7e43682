// Package gin provides Gin-compatible payment middleware. It is a thin
// adapter that translates gin.Context to stdlib http patterns and delegates
// all challenge, verification and settlement logic to the seller package.
package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/confluxpay/paygate/internal/seller"
)

// Payment wraps the payment middleware as a gin.HandlerFunc. On an unpaid or
// failed request the middleware has already written the 402/400 response and
// the handler chain is aborted; on success the settled payment is available
// via PaymentFrom.
func Payment(m *seller.Middleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		proceeded := false
		m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proceeded = true
			// Carry the payment-enriched context into the gin chain.
			c.Request = r
		})).ServeHTTP(c.Writer, c.Request)

		if !proceeded {
			c.Abort()
			return
		}
		c.Next()
	}
}

// PaymentFrom extracts the settled payment from the gin context. The second
// return is false on unpaid requests.
func PaymentFrom(c *gin.Context) (*seller.Payment, bool) {
	return seller.PaymentFrom(c.Request.Context())
}
