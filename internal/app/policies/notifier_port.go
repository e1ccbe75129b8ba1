package policies

import "context"

type NotificationKind string

const (
	NotifyBookingPending   NotificationKind = "booking_pending"
	NotifyBookingConfirmed NotificationKind = "booking_confirmed"
	NotifyBookingStarted   NotificationKind = "booking_started"
	NotifyBookingCompleted NotificationKind = "booking_completed"
	NotifyBookingCancelled NotificationKind = "booking_cancelled"
	NotifyBookingExpired   NotificationKind = "booking_expired"
	NotifyProviderAssigned NotificationKind = "provider_assigned"
	NotifyAssignmentNeeded NotificationKind = "assignment_needed"
	NotifyAssignmentDue    NotificationKind = "assignment_due"
	NotifyCertificateReady NotificationKind = "certificate_ready"
)

// Notifier is fire-and-forget: implementations must not block the caller on delivery and
// delivery failures never reach booking operations.
type Notifier interface {
	Notify(ctx context.Context, kind NotificationKind, bookingID string)
}
