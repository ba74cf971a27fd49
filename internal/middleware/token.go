package middleware

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/venue-ticketing/internal/model"
)

// StaffToken is a signed access token and its expiry.
type StaffToken struct {
	Token string    `json:"token"`
	Exp   time.Time `json:"expires_at"`
}

// IssueStaffToken signs an HS256 token that JWTAuth accepts.  Staff login
// lives outside this service; this exists for gate kiosks provisioned
// with long-lived device tokens and for local setups.
func IssueStaffToken(secret string, st model.Staff, role string, ttl time.Duration) (StaffToken, error) {
	if secret == "" {
		return StaffToken{}, errors.New("empty signing secret")
	}
	if st.ID == "" {
		return StaffToken{}, errors.New("staff id is required")
	}
	switch role {
	case RoleAdmin, RoleCounter, RoleGate:
	default:
		return StaffToken{}, errors.New("unknown role " + role)
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  st.ID,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	if st.Name != "" {
		claims["name"] = st.Name
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return StaffToken{}, err
	}
	return StaffToken{Token: signed, Exp: exp}, nil
}
