package tickets

import (
	"context"
	"fmt"

	"ms-checkout/internal/apperrors"
	"ms-checkout/internal/models"
	qr "ms-checkout/internal/tickets/qr_genrator"
)

// OwnedTransactions returns a transaction only to the user who bought it.
type OwnedTransactions interface {
	TransactionForOwner(ctx context.Context, userID, id string) (*models.Transaction, error)
}

type TicketService struct {
	Transactions OwnedTransactions
	QR           *qr.QRGenerator
}

func NewTicketService(txs OwnedTransactions, generator *qr.QRGenerator) *TicketService {
	return &TicketService{Transactions: txs, QR: generator}
}

// TicketQR renders the e-ticket for a confirmed transaction owned by userID.
func (s *TicketService) TicketQR(ctx context.Context, userID, transactionID string) ([]byte, error) {
	tx, err := s.Transactions.TransactionForOwner(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.Status != models.StatusDone {
		return nil, fmt.Errorf("%w: ticket is issued once payment is confirmed, status is %s", apperrors.ErrInvalidState, tx.Status)
	}

	return s.QR.GenerateEncryptedQR(qr.TicketClaim{
		TransactionID:  tx.ID,
		EventID:        tx.EventID,
		UserID:         tx.UserID,
		TicketQuantity: tx.TicketQuantity,
		IssuedAt:       tx.UpdatedAt,
	})
}
