package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func TicketContextKey(ticketID uuid.UUID) string {
	return fmt.Sprintf("ticket:context:%s", ticketID)
}

func TicketSummaryKey(ticketID uuid.UUID) string {
	return fmt.Sprintf("ticket:summary:%s", ticketID)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
