package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/skip2/go-qrcode"
)

// TicketClaim is what the gate scanner reads back out of the QR code.
type TicketClaim struct {
	TransactionID  string    `json:"transaction_id"`
	EventID        string    `json:"event_id"`
	UserID         string    `json:"user_id"`
	TicketQuantity int       `json:"ticket_quantity"`
	IssuedAt       time.Time `json:"issued_at"`
}

type QRGenerator struct {
	secret []byte
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:]}
}

// GenerateEncryptedQR renders a 256px PNG whose payload is the sealed claim.
func (q *QRGenerator) GenerateEncryptedQR(claim TicketClaim) ([]byte, error) {
	payload, err := q.Seal(claim)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(payload, qrcode.Medium, 256)
}

// Seal encrypts claim into a URL-safe string.
func (q *QRGenerator) Seal(claim TicketClaim) (string, error) {
	data, err := json.Marshal(claim)
	if err != nil {
		return "", err
	}

	gcm, err := q.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal and rejects payloads that were tampered with.
func (q *QRGenerator) Open(payload string) (TicketClaim, error) {
	raw, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return TicketClaim{}, fmt.Errorf("decode payload: %w", err)
	}

	gcm, err := q.aead()
	if err != nil {
		return TicketClaim{}, err
	}
	if len(raw) < gcm.NonceSize() {
		return TicketClaim{}, errors.New("payload too short")
	}

	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	data, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return TicketClaim{}, fmt.Errorf("open payload: %w", err)
	}

	var claim TicketClaim
	if err := json.Unmarshal(data, &claim); err != nil {
		return TicketClaim{}, fmt.Errorf("decode claim: %w", err)
	}
	return claim, nil
}

func (q *QRGenerator) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(q.secret)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
