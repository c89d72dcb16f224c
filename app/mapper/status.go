package mapper

import "github.com/odin-workspace/ms-go-billing/app/types"

// MapGatewayStatus converts the gateway's transaction_status/fraud_status
// pair into the internal order status. The mapping is total: any input not
// listed lands on UNKNOWN.
func MapGatewayStatus(transactionStatus, fraudStatus string) types.OrderStatus {
	switch transactionStatus {
	case "":
		return types.OrderStatusUnknown
	case "capture", "settlement":
		if fraudStatus == "challenge" {
			return types.OrderStatusPending
		}
		return types.OrderStatusPaid
	case "pending", "authorize":
		return types.OrderStatusPending
	case "deny", "cancel", "expire":
		return types.OrderStatusFailed
	case "refund", "partial_refund", "chargeback", "partial_chargeback":
		return types.OrderStatusRefunded
	default:
		return types.OrderStatusUnknown
	}
}
