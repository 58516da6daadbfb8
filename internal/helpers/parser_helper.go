package helpers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

func StringToInt(s string) (int, error) {
	return strconv.Atoi(s)
}

// GenerateTransactionID builds the caller-side idempotency key for a new
// payment attempt. The uuid fragment keeps two checkouts within the same
// second distinct.
func GenerateTransactionID() string {
	fragment := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("INV-%d-%s", time.Now().Unix(), strings.ToUpper(fragment))
}
