package controller

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/odin-workspace/ms-go-billing/app/entity"
	"github.com/odin-workspace/ms-go-billing/app/factory"
	appmiddleware "github.com/odin-workspace/ms-go-billing/app/middleware"
	"github.com/odin-workspace/ms-go-billing/app/service"
	"github.com/odin-workspace/ms-go-billing/app/types"
)

type PaymentController struct {
	orderService *service.OrderService
	logger       logrus.FieldLogger
}

func NewPaymentController(orderService *service.OrderService) *PaymentController {
	return &PaymentController{
		orderService: orderService,
		logger:       factory.NewModuleLogger("billing-payments-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaymentController) CreateToken(ctx echo.Context) error {
	req, err := types.NewCreateTokenRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	userID := appmiddleware.UserID(ctx)
	token, err := c.orderService.RequestToken(ctx.Request().Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrUnknownPlan):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrKeyPlanMismatch),
			errors.Is(err, service.ErrAlreadyCompleted),
			errors.Is(err, service.ErrProcessing),
			errors.Is(err, service.ErrAlreadyCreated),
			errors.Is(err, service.ErrRetryLater):
			return c.writeError(ctx, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrMisconfigured):
			c.logger.WithError(err).Error("Create token failed: gateway not configured")
			return c.writeError(ctx, http.StatusInternalServerError, err.Error())
		case errors.Is(err, service.ErrGatewayUnavailable):
			c.logger.WithError(err).Warn("Create token failed at gateway")
			return c.writeError(ctx, http.StatusBadGateway, err.Error())
		default:
			c.logger.WithError(err).Error("Create token failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, token)
}

func (c *PaymentController) HandleNotification(ctx echo.Context) error {
	notification, err := types.NewGatewayNotificationFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid notification payload")
	}
	if err := notification.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	if err := c.orderService.HandleNotification(ctx.Request().Context(), notification); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			factory.LoggerWithContext(c.logger, ctx).WithField("order_id", notification.OrderID).
				Warn("Rejected notification with invalid signature")
			return c.writeError(ctx, http.StatusForbidden, err.Error())
		case errors.Is(err, service.ErrMisconfigured):
			c.logger.WithError(err).Error("Notification rejected: gateway not configured")
			return c.writeError(ctx, http.StatusInternalServerError, err.Error())
		default:
			c.logger.WithError(err).Error("Handle notification failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.NotifyAckResponse{Received: true})
}

func (c *PaymentController) GetStatus(ctx echo.Context) error {
	req := types.NewOrderStatusRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	userID := appmiddleware.UserID(ctx)
	order, err := c.orderService.GetOrderStatus(ctx.Request().Context(), userID, req.OrderID)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "order not found")
		}
		c.logger.WithError(err).Error("Get order status failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, orderStatusToResponse(order))
}

func (c *PaymentController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}

func orderStatusToResponse(order *entity.PaymentOrder) *types.OrderStatusResponse {
	response := &types.OrderStatusResponse{
		OrderID:     order.OrderID,
		PlanID:      order.PlanID,
		Status:      string(order.Status),
		GrossAmount: order.GrossAmount,
		Currency:    order.Currency,
		CreatedAt:   order.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   order.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if order.TransactionStatus != nil {
		response.TransactionStatus = *order.TransactionStatus
	}
	if order.FraudStatus != nil {
		response.FraudStatus = *order.FraudStatus
	}
	if order.PaidAt != nil {
		response.PaidAt = order.PaidAt.UTC().Format(time.RFC3339)
	}
	return response
}
