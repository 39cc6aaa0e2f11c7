package tickets

import (
	"context"
	"fmt"

	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/models"
	"ms-venue-ticketing/internal/tickets/qr"
	"ms-venue-ticketing/internal/tickets/template"
)

type DBLayer interface {
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	GetTicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error)
}

// TicketService is the read side of tickets: lookups, and QR rendering and
// verification for bought tickets.
type TicketService struct {
	DB     DBLayer
	QR     *qr.QRGenerator
	PDF    *template.TicketPDFGenerator
	Logger *logger.Logger
}

func NewTicketService(db DBLayer, qrGen *qr.QRGenerator, log *logger.Logger) *TicketService {
	return &TicketService{DB: db, QR: qrGen, PDF: template.NewTicketPDFGenerator(), Logger: log}
}

// GetTicket returns a ticket owned by userID.
func (s *TicketService) GetTicket(ctx context.Context, userID, id string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != userID {
		return nil, fmt.Errorf("ticket %s: %w", id, models.ErrTicketNotHeldByUser)
	}
	return ticket, nil
}

func (s *TicketService) GetTicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	tickets, err := s.DB.GetTicketsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tickets for user %s: %w", userID, err)
	}
	return tickets, nil
}

// TicketQR renders the entry QR code of a bought ticket.
func (s *TicketService) TicketQR(ctx context.Context, userID, id string) ([]byte, error) {
	_, png, err := s.boughtTicketQR(ctx, userID, id)
	return png, err
}

// TicketPDF renders a printable ticket carrying the entry QR code.
func (s *TicketService) TicketPDF(ctx context.Context, userID, id string) ([]byte, error) {
	ticket, png, err := s.boughtTicketQR(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	pdf, err := s.PDF.Generate(*ticket, png)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return pdf, nil
}

func (s *TicketService) boughtTicketQR(ctx context.Context, userID, id string) (*models.Ticket, []byte, error) {
	ticket, err := s.GetTicket(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	if ticket.Status != models.TicketBought {
		return nil, nil, fmt.Errorf("ticket %s is %s: %w", id, ticket.Status, models.ErrTicketNotAvailable)
	}

	png, err := s.QR.GenerateEncryptedQR(qr.Payload{
		TicketID:   ticket.ID,
		ShowID:     ticket.ShowID,
		TicketCode: ticket.TicketCode,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate QR: %w", err)
	}
	return ticket, png, nil
}

// VerifyQR decodes a scanned QR payload and checks that it still refers to a
// bought ticket with the same code.
func (s *TicketService) VerifyQR(ctx context.Context, encrypted string) (*models.Ticket, error) {
	payload, err := s.QR.DecryptQRData(encrypted)
	if err != nil {
		return nil, fmt.Errorf("invalid QR code: %w", models.ErrTicketNotAvailable)
	}
	ticket, err := s.DB.GetTicketByID(ctx, payload.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != models.TicketBought || ticket.TicketCode != payload.TicketCode {
		s.Logger.Warn("TICKET", fmt.Sprintf("QR rejected for ticket %s (status %s)", ticket.ID, ticket.Status))
		return nil, fmt.Errorf("ticket %s is not valid for entry: %w", ticket.ID, models.ErrTicketNotAvailable)
	}
	return ticket, nil
}
