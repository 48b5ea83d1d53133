package apiclient

import (
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/ratelimit"
)

// DefaultRules reads config.rate_limit from the connection, falling back to
// ten calls per second.
//
//	"rate_limit": {"capacity": 5, "rate": 5, "period_seconds": 1}
func DefaultRules(conn *models.ConnectionDefinition) []ratelimit.Rule {
	key := anonymousKey
	if conn != nil {
		key = conn.ID
	}

	rule := ratelimit.Rule{Key: "connection:" + key, Capacity: 10, Rate: 10, Period: time.Second}

	if conn == nil {
		return []ratelimit.Rule{rule}
	}

	settings, _ := conn.Config["rate_limit"].(map[string]any)

	if capacity, ok := settings["capacity"].(float64); ok && capacity > 0 {
		rule.Capacity = capacity
		rule.Rate = capacity
	}

	if rate, ok := settings["rate"].(float64); ok && rate > 0 {
		rule.Rate = rate
	}

	if period, ok := settings["period_seconds"].(float64); ok && period > 0 {
		rule.Period = time.Duration(period * float64(time.Second))
	}

	return []ratelimit.Rule{rule}
}

// EnhancedRules applies burst and sustained buckets per connection. A
// connection may override them with config.rate_limit.burst and
// config.rate_limit.sustained_per_hour.
func EnhancedRules(limiter *ratelimit.EnhancedLimiter) RuleFunc {
	return func(conn *models.ConnectionDefinition) []ratelimit.Rule {
		key := "connection:" + anonymousKey
		if conn == nil {
			return limiter.Rules(key, 1)
		}

		key = "connection:" + conn.ID
		settings, _ := conn.Config["rate_limit"].(map[string]any)

		burst, hasBurst := settings["burst"].(float64)
		sustained, hasSustained := settings["sustained_per_hour"].(float64)

		if hasBurst || hasSustained {
			allowance := ratelimit.DefaultAllowance
			if hasBurst && burst > 0 {
				allowance.Burst = ratelimit.Tier{Capacity: burst, Rate: burst, Period: time.Second}
			}

			if hasSustained && sustained > 0 {
				allowance.Sustained = ratelimit.Tier{Capacity: sustained, Rate: sustained, Period: time.Hour}
			}

			limiter.SetAllowance(key, allowance)
		}

		return limiter.Rules(key, 1)
	}
}

// NewEnhancedClient builds a client whose calls pass both the burst and the
// sustained bucket of their connection.
func NewEnhancedClient(client *Client, limiter *ratelimit.EnhancedLimiter) *Client {
	enhanced := *client
	enhanced.limiter = limiter.Limiter
	enhanced.rules = EnhancedRules(limiter)

	return &enhanced
}
