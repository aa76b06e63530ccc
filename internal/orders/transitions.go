package orders

import (
	"fmt"
	"strings"

	"github.com/satoshishop/backend/pkg/enums"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
)

// transitionTable encodes the only legal status edges. Anything not listed
// here is rejected, which makes the order status the serialization point for
// concurrent webhook and staff writes.
var transitionTable = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {
		enums.OrderStatusPaid,
		enums.OrderStatusCancelled,
		enums.OrderStatusExpired,
	},
	enums.OrderStatusPaid: {
		enums.OrderStatusProcessing,
		enums.OrderStatusShipped,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
		enums.OrderStatusPartiallyRefunded,
	},
	enums.OrderStatusProcessing: {
		enums.OrderStatusShipped,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
		enums.OrderStatusPartiallyRefunded,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusDelivered,
		enums.OrderStatusRefunded,
		enums.OrderStatusPartiallyRefunded,
	},
}

// AllowedNext returns the statuses reachable from the current one.
func AllowedNext(current enums.OrderStatus) []enums.OrderStatus {
	next, ok := transitionTable[current]
	if !ok {
		return nil
	}
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether the edge current -> target is legal.
func CanTransition(current, target enums.OrderStatus) bool {
	for _, allowed := range transitionTable[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ValidateTransition rejects illegal edges with an error that names the
// current status and the allowed next set so staff tooling can self-correct.
func ValidateTransition(current, target enums.OrderStatus) error {
	if !target.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown status %q", target))
	}
	if CanTransition(current, target) {
		return nil
	}

	next := transitionTable[current]
	if len(next) == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is %s, which is terminal", current))
	}
	names := make([]string, len(next))
	for i, status := range next {
		names[i] = status.String()
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("cannot move order from %s to %s, allowed: %s", current, target, strings.Join(names, ", ")))
}

// ValidateShipInputs enforces the shipped-entry preconditions before any
// store write happens.
func ValidateShipInputs(carrier, trackingNumber string) error {
	if strings.TrimSpace(carrier) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "carrier is required to ship")
	}
	if strings.TrimSpace(trackingNumber) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required to ship")
	}
	return nil
}

// ClassifyRefund maps a requested amount against the order total: equal means
// a full refund, anything strictly between zero and the total is partial.
func ClassifyRefund(requested, total int) (enums.OrderStatus, error) {
	if requested <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if requested > total {
		return "", pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("refund amount %d exceeds order total %d", requested, total))
	}
	if requested == total {
		return enums.OrderStatusRefunded, nil
	}
	return enums.OrderStatusPartiallyRefunded, nil
}
