package template

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-venue-ticketing/internal/models"
	"ms-venue-ticketing/internal/tickets/qr"
)

func TestGenerateTicketPDF(t *testing.T) {
	ticket := models.Ticket{
		ID:         "ticket-1",
		ShowID:     "show-1",
		SectorID:   "sector-1",
		Status:     models.TicketBought,
		TicketCode: "TKT-AAAA-BBBB",
		UpdatedAt:  time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC),
	}
	code, err := qr.NewQRGenerator("pdf-secret").GenerateEncryptedQR(qr.Payload{
		TicketID: ticket.ID, ShowID: ticket.ShowID, TicketCode: ticket.TicketCode,
	})
	require.NoError(t, err)

	out, err := NewTicketPDFGenerator().Generate(ticket, code)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestGenerateRejectsBrokenQR(t *testing.T) {
	_, err := NewTicketPDFGenerator().Generate(models.Ticket{ID: "ticket-1"}, []byte("not a png"))
	assert.Error(t, err)
}
