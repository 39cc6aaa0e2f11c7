package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const ticketCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewID returns a fresh entity identifier.
func NewID() string {
	return uuid.NewString()
}

// GenerateTicketCode returns the random code printed on a purchased ticket,
// e.g. "TKT-7KQ9-M2XA". Ambiguous characters (0/O, 1/I) are left out.
func GenerateTicketCode() string {
	var b strings.Builder
	b.WriteString("TKT-")
	for i := 0; i < 8; i++ {
		if i == 4 {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(ticketCodeAlphabet))))
		if err != nil {
			// crypto/rand does not fail on supported platforms; fall back to
			// uuid entropy rather than returning a short code.
			return fmt.Sprintf("TKT-%s", strings.ToUpper(uuid.NewString()[:9]))
		}
		b.WriteByte(ticketCodeAlphabet[n.Int64()])
	}
	return b.String()
}

// GenerateTransactionID returns a provider-facing reference for a payment
// session.
func GenerateTransactionID(sessionID string) string {
	return fmt.Sprintf("txn_%s", strings.ReplaceAll(sessionID, "-", ""))
}
