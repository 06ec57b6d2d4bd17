package restapi

import (
	"context"
	"errors"
	"net/http"

	"atm_bridge/internal/app/port"
	"atm_bridge/internal/app/service"
	"atm_bridge/internal/domain/entity"

	"github.com/gin-gonic/gin"
)

// APIATMResponse is the envelope of every ATM endpoint.
type APIATMResponse = entity.ATMResponse

// ATMHandler exposes the bridge over HTTP.
type ATMHandler struct {
	atm    port.ATMService
	logger port.Logger
}

// NewATMHandler creates a new ATMHandler.
func NewATMHandler(atm port.ATMService, logger port.Logger) *ATMHandler {
	return &ATMHandler{atm: atm, logger: logger}
}

// GetATMHandler returns the current view together with pending notices.
func (h *ATMHandler) GetATMHandler(c *gin.Context) {
	h.respond(c, nil, "ATM state retrieved.")
}

// ConnectHandler requests account authorization from the wallet provider.
func (h *ATMHandler) ConnectHandler(c *gin.Context) {
	h.run(c, h.atm.ConnectAccount, "Account connection processed.")
}

// RefreshHandler re-reads the contract and wallet balances.
func (h *ATMHandler) RefreshHandler(c *gin.Context) {
	h.run(c, h.atm.RefreshBalances, "Balances refreshed.")
}

// DepositHandler deposits one unit into the ATM.
func (h *ATMHandler) DepositHandler(c *gin.Context) {
	h.run(c, h.atm.Deposit, "Deposit confirmed.")
}

// WithdrawHandler withdraws one unit from the ATM.
func (h *ATMHandler) WithdrawHandler(c *gin.Context) {
	h.run(c, h.atm.Withdraw, "Withdrawal confirmed.")
}

// MultiplyHandler doubles the ATM balance.
func (h *ATMHandler) MultiplyHandler(c *gin.Context) {
	h.run(c, h.atm.MultiplyBalance, "Balance multiplied.")
}

// TransferOwnershipHandler hands the contract to the address in the request body.
func (h *ATMHandler) TransferOwnershipHandler(c *gin.Context) {
	var req entity.TransferOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIATMResponse{
			Data:          h.atm.View(),
			Error:         err.Error(),
			StatusMessage: "Request body must be a JSON object with a newOwner field.",
		})
		return
	}
	h.run(c, func(ctx context.Context) error {
		return h.atm.TransferOwnership(ctx, req.NewOwner)
	}, "Ownership transfer confirmed.")
}

func (h *ATMHandler) run(c *gin.Context, action func(ctx context.Context) error, okMessage string) {
	err := action(c.Request.Context())
	if err != nil {
		h.logger.Warn("ATM request failed", "path", c.FullPath(), "error", err)
	}
	h.respond(c, err, okMessage)
}

func (h *ATMHandler) respond(c *gin.Context, err error, okMessage string) {
	view := h.atm.View()
	view.Notices = h.atm.DrainNotices()

	if err != nil {
		status, message := statusFor(err)
		c.JSON(status, APIATMResponse{Data: view, Error: err.Error(), StatusMessage: message})
		return
	}
	c.JSON(http.StatusOK, APIATMResponse{Data: view, StatusMessage: okMessage})
}

// statusFor maps bridge errors to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNoProvider):
		return http.StatusPreconditionFailed, "No wallet provider is available."
	case errors.Is(err, service.ErrNotConnected):
		return http.StatusConflict, "No account is connected."
	case errors.Is(err, service.ErrActionInFlight):
		return http.StatusTooManyRequests, "The same action is still in flight."
	case errors.Is(err, service.ErrNoOwner):
		return http.StatusBadRequest, "A new owner address is required."
	case errors.Is(err, service.ErrTransactionFailed):
		return http.StatusBadGateway, "The transaction failed."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "The request timed out."
	default:
		return http.StatusInternalServerError, "Unexpected error."
	}
}
