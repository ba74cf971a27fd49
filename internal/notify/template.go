package notify

import (
	"fmt"
	"regexp"
)

// Notification types with a fixed variable set each.
const (
	TypeTicketIssued     = "ticket_issued"
	TypeBookingConfirmed = "booking_confirmed"
	TypeBookingCancelled = "booking_cancelled"
)

// Variables lists the names each notification type may reference.
var Variables = map[string][]string{
	TypeTicketIssued:     {"name", "ticket_number", "date", "guardians", "children", "total"},
	TypeBookingConfirmed: {"name", "booking_id", "date", "time_slot", "total"},
	TypeBookingCancelled: {"name", "booking_id", "date", "time_slot", "refund"},
}

var fallbacks = map[string]string{
	TypeTicketIssued: "প্রিয় {{name}}, আপনার টিকিট {{ticket_number}} ({{date}}) নিশ্চিত হয়েছে। মোট: ৳{{total}}\n" +
		"Dear {{name}}, your ticket {{ticket_number}} for {{date}} is confirmed. Total: BDT {{total}}",
	TypeBookingConfirmed: "প্রিয় {{name}}, আপনার বুকিং #{{booking_id}} {{date}} {{time_slot}} নিশ্চিত হয়েছে। মোট: ৳{{total}}\n" +
		"Dear {{name}}, booking #{{booking_id}} on {{date}} at {{time_slot}} is confirmed. Total: BDT {{total}}",
	TypeBookingCancelled: "প্রিয় {{name}}, আপনার বুকিং #{{booking_id}} ({{date}} {{time_slot}}) বাতিল করা হয়েছে। ফেরত: ৳{{refund}}\n" +
		"Dear {{name}}, booking #{{booking_id}} on {{date}} at {{time_slot}} was cancelled. Refund: BDT {{refund}}",
}

var placeholder = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*\}\}`)

// Templates renders notification text from stored templates, falling back
// to the built-in bilingual text for types with no stored template.
type Templates struct {
	stored map[string]string
}

// NewTemplates wraps the configured templates keyed by notification type.
func NewTemplates(stored map[string]string) Templates {
	return Templates{stored: stored}
}

// Render fills the template for kind.  Only the variables declared for
// kind are substituted; any other placeholder is left as written so a
// typo in a stored template is visible rather than silently blank.
func (t Templates) Render(kind string, vars map[string]string) (string, error) {
	allowed, ok := Variables[kind]
	if !ok {
		return "", fmt.Errorf("unknown notification type %q", kind)
	}
	tpl, ok := t.stored[kind]
	if !ok || tpl == "" {
		tpl = fallbacks[kind]
	}
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	return placeholder.ReplaceAllStringFunc(tpl, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if !set[name] {
			return m
		}
		return vars[name]
	}), nil
}

// Taka formats an amount in poisha as taka with two decimals.
func Taka(poisha int64) string {
	sign := ""
	if poisha < 0 {
		sign, poisha = "-", -poisha
	}
	return fmt.Sprintf("%s%d.%02d", sign, poisha/100, poisha%100)
}
