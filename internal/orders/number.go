package orders

import (
	"context"
	"crypto/rand"
	"fmt"

	pkgerrors "github.com/satoshishop/backend/pkg/errors"
)

// numberAlphabet avoids lookalike characters (0/O, 1/I/L) so the code
// survives being read over the phone.
const numberAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const (
	numberLength      = 5
	numberMaxAttempts = 5
)

// GenerateOrderNumber returns a short human-facing code, collision-checked
// against existing orders.
func GenerateOrderNumber(ctx context.Context, repo Repository) (string, error) {
	for attempt := 0; attempt < numberMaxAttempts; attempt++ {
		candidate, err := randomCode(numberLength)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}
		exists, err := repo.OrderNumberExists(ctx, candidate)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check order number")
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal,
		fmt.Sprintf("could not find a free order number in %d attempts", numberMaxAttempts))
}

func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = numberAlphabet[int(b)%len(numberAlphabet)]
	}
	return string(out), nil
}
