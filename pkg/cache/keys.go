package cache

import "fmt"

// Key conventions for cached read models. Every mutating path in the deals
// and notifications services invalidates through these, never ad hoc strings.

// DealKey is the single-entity cache key for a deal.
func DealKey(dealID string) string {
	return fmt.Sprintf("deals:%s", dealID)
}

// DealsAllKey caches the full deal list.
const DealsAllKey = "deals:all"

// DealsCategoryKey caches the per-category deal list.
func DealsCategoryKey(category string) string {
	return fmt.Sprintf("deals:category:%s", category)
}

// UserNotificationsKey caches a user's notification list.
func UserNotificationsKey(userID string) string {
	return fmt.Sprintf("user:%s:notifications", userID)
}

// NotificationsAllKey caches the admin view of all notifications.
const NotificationsAllKey = "notifications:all"
