package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobEventsChannel(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s:events", jobID)
}

func RateLimitKey(owner string) string {
	return fmt.Sprintf("ratelimit:%s", owner)
}
