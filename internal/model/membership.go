package model

// MembershipStatus is the state of a membership entitlement.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "active"
	MembershipExpired   MembershipStatus = "expired"
	MembershipCancelled MembershipStatus = "cancelled"
)

// Membership is a phone-keyed discount entitlement with a validity window.
// ValidFrom and ValidUntil are inclusive dates (YYYY-MM-DD).
type Membership struct {
	ID              uint64           `json:"id"`
	Phone           string           `json:"phone"`
	HolderName      string           `json:"holder_name"`
	DiscountPercent int              `json:"discount_percent"`
	ValidFrom       string           `json:"valid_from"`
	ValidUntil      string           `json:"valid_until"`
	Status          MembershipStatus `json:"status"`
}

// ValidOn reports whether the membership is active and the given date lies
// inside its validity window.  Dates in DateLayout compare lexically.
func (m Membership) ValidOn(date string) bool {
	if m.Status != MembershipActive {
		return false
	}
	return m.ValidFrom <= date && date <= m.ValidUntil
}
