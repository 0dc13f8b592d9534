package shared

import "fmt"

// ReminderKey builds the redis key that suppresses duplicate payment reminders
// for a quotation within the configured window.
func ReminderKey(quotationID string) string {
	return fmt.Sprintf("quotation:%s:reminder", quotationID)
}
