package domain

import "time"

// SubscriptionPlan is the billing tier used for upload quota resolution.
type SubscriptionPlan string

const (
	PlanFree SubscriptionPlan = "free"
	PlanPro  SubscriptionPlan = "pro"
)

// User is the read-only snapshot the upload pipeline needs. Account
// management and authentication live in a separate service.
type User struct {
	ID                    string           `json:"id"`
	Email                 string           `json:"email"`
	DisplayName           string           `json:"displayName"`
	SubscriptionPlan      SubscriptionPlan `json:"subscriptionPlan"`
	SubscriptionExpiresAt *time.Time       `json:"subscriptionExpiresAt,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`
}

// ProActive reports whether the pro plan applies at the given instant.
func (u *User) ProActive(now time.Time) bool {
	if u.SubscriptionPlan != PlanPro {
		return false
	}
	return u.SubscriptionExpiresAt == nil || u.SubscriptionExpiresAt.After(now)
}
