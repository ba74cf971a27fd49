// Package pricing computes ticket prices.  Everything here is a pure
// function of its arguments so that a breakdown can be recomputed for
// refunds and audits and always come out the same.
package pricing

import "github.com/iliyamo/venue-ticketing/internal/model"

// Rates are the configured unit prices, in the smallest currency unit.
type Rates struct {
	EntryBase     int64 // covers one guardian and one child
	ExtraGuardian int64 // per guardian beyond the first
	ExtraChild    int64 // per child beyond the first
	Socks         int64 // per pair of socks
}

// Input is the entry composition being priced.  Zero counts for guardians
// and children mean one; a ticket always covers at least one of each.
type Input struct {
	Guardians int
	Children  int
	Socks     int
	Rides     []model.RideSelection
	// Phone and Date identify the guest and visit day for the membership
	// check.  An empty Phone skips the phone match.
	Phone      string
	Date       string
	Membership *model.Membership
}

// Price applies the pricing rules in order: entry, socks, rides, subtotal,
// membership discount on the entry price only, total.
func Price(r Rates, in Input) model.PriceBreakdown {
	guardians := atLeast(in.Guardians, 1)
	children := atLeast(in.Children, 1)
	socks := atLeast(in.Socks, 0)

	var b model.PriceBreakdown
	b.EntryPrice = r.EntryBase +
		int64(guardians-1)*r.ExtraGuardian +
		int64(children-1)*r.ExtraChild
	b.SocksPrice = int64(socks) * r.Socks
	b.RidesPrice = RidesTotal(in.Rides)
	b.Subtotal = b.EntryPrice + b.SocksPrice + b.RidesPrice

	if MembershipApplies(in.Membership, in.Phone, in.Date) {
		pct := int64(in.Membership.DiscountPercent)
		if pct > 100 {
			pct = 100
		}
		b.Discount = b.EntryPrice * pct / 100
	}
	b.Total = b.Subtotal - b.Discount
	return b
}

// RidesTotal sums captured unit prices times quantity.  Non-positive
// quantities contribute nothing.
func RidesTotal(rides []model.RideSelection) int64 {
	var total int64
	for _, r := range rides {
		if r.Quantity <= 0 || r.UnitPrice < 0 {
			continue
		}
		total += r.UnitPrice * int64(r.Quantity)
	}
	return total
}

// MembershipApplies reports whether m grants a discount to phone on date.
func MembershipApplies(m *model.Membership, phone, date string) bool {
	if m == nil || m.DiscountPercent <= 0 {
		return false
	}
	if phone != "" && m.Phone != phone {
		return false
	}
	return m.ValidOn(date)
}

func atLeast(n, min int) int {
	if n < min {
		return min
	}
	return n
}
