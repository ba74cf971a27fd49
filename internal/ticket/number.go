package ticket

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const numberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewNumber returns a short alphanumeric ticket number: "TK", the issue
// time in base 36 milliseconds, then three random characters.  Numbers
// sort roughly by issue time.
func NewNumber(now time.Time) string {
	var b strings.Builder
	b.WriteString("TK")
	b.WriteString(strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)))
	max := big.NewInt(int64(len(numberAlphabet)))
	for i := 0; i < 3; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms; fall back
			// to the clock so a number is still produced.
			n = big.NewInt(now.UnixNano() % int64(len(numberAlphabet)))
		}
		b.WriteByte(numberAlphabet[n.Int64()])
	}
	return b.String()
}
