package template

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/signintech/gopdf"
	"golang.org/x/image/font/gofont/goregular"

	"ms-venue-ticketing/internal/models"
)

const fontFamily = "goregular"

// TicketPDFGenerator renders a printable ticket with its entry QR code.
type TicketPDFGenerator struct{}

func NewTicketPDFGenerator() *TicketPDFGenerator {
	return &TicketPDFGenerator{}
}

func (g *TicketPDFGenerator) Generate(ticket models.Ticket, qrCode []byte) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFontData(fontFamily, goregular.TTF); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	if err := pdf.SetFont(fontFamily, "", 14); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}

	pdf.SetX(40)
	pdf.SetY(30)
	if err := pdf.Cell(nil, "ADMIT ONE"); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	pdf.SetY(60)
	if err := addTicketInfo(pdf, ticket); err != nil {
		return nil, err
	}

	if len(qrCode) > 0 {
		if err := addQRCode(pdf, qrCode); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func addTicketInfo(pdf *gopdf.GoPdf, ticket models.Ticket) error {
	seat := ticket.SeatID
	if seat == "" {
		seat = "standing"
	}
	info := []struct {
		Label string
		Value string
	}{
		{"Ticket", ticket.ID},
		{"Code", ticket.TicketCode},
		{"Show", ticket.ShowID},
		{"Sector", ticket.SectorID},
		{"Seat", seat},
		{"Issued", ticket.UpdatedAt.Format("2006-01-02 15:04")},
	}

	for _, item := range info {
		pdf.SetX(40)
		if err := pdf.Cell(nil, item.Label+": "+item.Value); err != nil {
			return fmt.Errorf("failed to write %s: %w", item.Label, err)
		}
		pdf.Br(20)
	}
	return nil
}

func addQRCode(pdf *gopdf.GoPdf, qrCode []byte) error {
	img, err := png.Decode(bytes.NewReader(qrCode))
	if err != nil {
		return fmt.Errorf("failed to decode QR code: %w", err)
	}
	rect := &gopdf.Rect{W: 150, H: 150}
	if err := pdf.ImageFrom(img, 40, pdf.GetY()+20, rect); err != nil {
		return fmt.Errorf("failed to draw QR code: %w", err)
	}
	return nil
}
