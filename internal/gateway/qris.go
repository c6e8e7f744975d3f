// Package gateway is the outbound adapter for the external QRIS payment
// processor (Midtrans Core API compatible).
package gateway

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnavailable wraps any transport or gateway-side failure. Callers treat
// it as a signal to degrade rather than fail order creation.
var ErrUnavailable = errors.New("payment gateway unavailable")

// Client calls the QRIS gateway over HTTP with a bounded timeout.
type Client struct {
	baseURL   string
	serverKey string
	http      *http.Client
}

func NewClient(baseURL, serverKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		serverKey: serverKey,
		http:      &http.Client{Timeout: timeout},
	}
}

// Charge is the result of creating a QRIS transaction.
type Charge struct {
	OrderRef      string
	TransactionID string
	QRPayload     string
	Expiry        time.Time
}

// ChargeItem is one order line reported to the gateway.
type ChargeItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int32  `json:"quantity"`
}

type chargeRequest struct {
	PaymentType        string             `json:"payment_type"`
	TransactionDetails transactionDetails `json:"transaction_details"`
	ItemDetails        []ChargeItem       `json:"item_details,omitempty"`
}

type transactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type chargeResponse struct {
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message"`
	TransactionID     string `json:"transaction_id"`
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	ExpiryTime        string `json:"expiry_time"`
	Actions           []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"actions"`
	QRString string `json:"qr_string"`
}

// CreateCharge opens a QRIS transaction for the given order reference and
// amount in minor units.
func (c *Client) CreateCharge(ctx context.Context, orderRef string, amount int64, items []ChargeItem) (*Charge, error) {
	body, err := json.Marshal(chargeRequest{
		PaymentType: "qris",
		TransactionDetails: transactionDetails{
			OrderID:     orderRef,
			GrossAmount: amount,
		},
		ItemDetails: items,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal charge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/charge", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build charge request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var cr chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("%w: decode charge response: %v", ErrUnavailable, err)
	}
	// The gateway reports application-level status in-band; 201 is accepted.
	if cr.StatusCode != "201" && cr.StatusCode != "200" {
		return nil, fmt.Errorf("%w: gateway status %s: %s", ErrUnavailable, cr.StatusCode, cr.StatusMessage)
	}

	expiry, err := time.Parse("2006-01-02 15:04:05", cr.ExpiryTime)
	if err != nil {
		// Missing or malformed expiry defaults to the gateway's 15 minute QRIS window.
		expiry = time.Now().Add(15 * time.Minute)
	}

	qr := cr.QRString
	if qr == "" {
		for _, a := range cr.Actions {
			if a.Name == "generate-qr-code" {
				qr = a.URL
			}
		}
	}

	return &Charge{
		OrderRef:      cr.OrderID,
		TransactionID: cr.TransactionID,
		QRPayload:     qr,
		Expiry:        expiry,
	}, nil
}

type statusResponse struct {
	StatusCode        string `json:"status_code"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
}

// QueryStatus polls the gateway for the authoritative transaction status of
// a previously created charge.
func (c *Client) QueryStatus(ctx context.Context, gatewayOrderID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/"+gatewayOrderID+"/status", nil)
	if err != nil {
		return "", fmt.Errorf("build status request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("%w: decode status response: %v", ErrUnavailable, err)
	}
	if sr.StatusCode == "404" {
		return "", fmt.Errorf("%w: transaction not found", ErrUnavailable)
	}

	return sr.TransactionStatus, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.serverKey+":")))
}

// FormatGross renders an amount in minor units the way the gateway reports
// gross_amount ("46000" -> "46000.00").
func FormatGross(amount int64) string {
	return decimal.NewFromInt(amount).StringFixed(2)
}

// VerifySignature checks a webhook notification's signature_key:
// SHA-512 over order_id + status_code + gross_amount + server key, using
// the notification's fields verbatim.
func VerifySignature(orderID, statusCode, grossAmount, serverKey, signature string) bool {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
