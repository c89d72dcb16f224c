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
	"github.com/odin-workspace/ms-go-billing/app/plan"
	"github.com/odin-workspace/ms-go-billing/app/service"
	"github.com/odin-workspace/ms-go-billing/app/types"
)

type SubscriptionController struct {
	subscriptionService *service.SubscriptionService
	logger              logrus.FieldLogger
}

func NewSubscriptionController(subscriptionService *service.SubscriptionService) *SubscriptionController {
	return &SubscriptionController{
		subscriptionService: subscriptionService,
		logger:              factory.NewModuleLogger("billing-subscriptions-controller"),
	}
}

func (c *SubscriptionController) GetMine(ctx echo.Context) error {
	userID := appmiddleware.UserID(ctx)

	snapshot, err := c.subscriptionService.GetSubscription(ctx.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrSubscriptionNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "no subscription")
		}
		c.logger.WithError(err).Error("Get subscription failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, subscriptionToResponse(snapshot))
}

func (c *SubscriptionController) ListPlans(ctx echo.Context) error {
	plans := plan.Catalog()
	response := &types.ListPlansResponse{Plans: make([]*types.PlanResponse, 0, len(plans))}
	for _, p := range plans {
		response.Plans = append(response.Plans, &types.PlanResponse{
			ID:       p.ID,
			Name:     p.Name,
			PriceIDR: p.PriceIDR,
			Currency: plan.Currency,
			Summary:  p.Summary,
			Features: p.Features,
		})
	}
	return ctx.JSON(http.StatusOK, response)
}

func (c *SubscriptionController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}

func subscriptionToResponse(snapshot *entity.Subscription) *types.SubscriptionResponse {
	response := &types.SubscriptionResponse{
		PlanID:  snapshot.PlanID,
		Status:  string(snapshot.Status),
		OrderID: snapshot.OrderID,
	}
	if snapshot.StartedAt != nil {
		response.StartedAt = snapshot.StartedAt.UTC().Format(time.RFC3339)
	}
	if snapshot.CurrentPeriodEnd != nil {
		response.CurrentPeriodEnd = snapshot.CurrentPeriodEnd.UTC().Format(time.RFC3339)
	}
	return response
}
