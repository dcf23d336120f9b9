package models

const (
	// CollectionAppointments holds booking requests.
	CollectionAppointments = "appointments"
)

// TimeSlots are the bookable half-hour slots shown on the booking form.
var TimeSlots = []string{
	"09:00", "09:30", "10:00", "10:30", "11:00", "11:30",
	"14:00", "14:30", "15:00", "15:30", "16:00", "16:30", "17:00",
}

// IsTimeSlot reports whether slot is one of TimeSlots.
func IsTimeSlot(slot string) bool {
	for _, s := range TimeSlots {
		if s == slot {
			return true
		}
	}
	return false
}

const (
	// DateLayout is the wire format of appointment dates.
	DateLayout = "2006-01-02"

	// DefaultBookingWindowMonths how far ahead the booking form accepts dates
	DefaultBookingWindowMonths = 3

	// SuccessBannerSeconds how long the booking success banner stays visible
	SuccessBannerSeconds = 5

	// DefaultSessionTTL lifetime of an issued session token
	DefaultSessionTTL = 7 * 24 * 60 * 60 // 7 days in seconds

	// WorkerQueueSize in-memory sync queue capacity
	WorkerQueueSize = 128

	// DefaultDigestSchedule is the cron expression of the pending appointments digest
	DefaultDigestSchedule = "0 9 * * *"
)

// DefaultAdminEmails are used when no allow-list is configured.
var DefaultAdminEmails = []string{"admin@oliveiratattoo.com", "deni@oliveiratattoo.com"}
