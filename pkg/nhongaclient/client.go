/**
 * @description
 * This package provides a client for the Nhonga mobile-money payment gateway.
 * It encapsulates the logic for making authenticated HTTP requests to the
 * gateway's endpoints, building request bodies, and parsing responses. The
 * gateway is an untrusted remote collaborator: every failure is mapped to a
 * typed error so callers never see a raw transport fault.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package nhongaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is a client for the Nhonga payment API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new Nhonga API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// MobilePaymentRequest is the payload for initiating a mobile-money charge.
// The custom_data.userId field is the only correlation between the remote
// transaction and a local user, so it must always be set.
type MobilePaymentRequest struct {
	Method     string `json:"method"`
	Amount     int64  `json:"amount"`
	Context    string `json:"context"`
	UserEmail  string `json:"useremail"`
	Phone      string `json:"phone"`
	CustomData struct {
		UserID string `json:"userId"`
	} `json:"custom_data"`
}

// MobilePaymentResponse is the gateway's answer to a payment initiation.
type MobilePaymentResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Error   string `json:"error"`
}

// StatusResponse is the gateway's answer to a status poll.
type StatusResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Error   string `json:"error"`
}

// ErrorResponse represents a rejection reported by the Nhonga API.
type ErrorResponse struct {
	StatusCode int
	Message    string
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("nhonga api error: %s", e.Message)
	}
	return fmt.Sprintf("nhonga api error: status %d", e.StatusCode)
}

// CreateMobilePayment asks the gateway to charge a subscriber's mobile-money
// wallet. On success the gateway-issued transaction id is returned; it is the
// caller's only handle on the transaction from then on.
func (c *Client) CreateMobilePayment(ctx context.Context, payload MobilePaymentRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/api/payment/mobile", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create payment request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute payment request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read payment response: %w", err)
	}

	var payResp MobilePaymentResponse
	if err := json.Unmarshal(bodyBytes, &payResp); err != nil {
		log.Printf("level=warn component=nhonga_client op=create_payment status=%d msg=\"unparsable response body\"", resp.StatusCode)
		return "", &ErrorResponse{StatusCode: resp.StatusCode}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !payResp.Success || payResp.ID == "" {
		log.Printf("level=warn component=nhonga_client op=create_payment status=%d gateway_error=%q", resp.StatusCode, payResp.Error)
		return "", &ErrorResponse{StatusCode: resp.StatusCode, Message: payResp.Error}
	}

	return payResp.ID, nil
}

// GetPaymentStatus polls the gateway for the current status of a transaction.
// The returned status is one of the gateway's closed set: pending, completed
// or failed.
func (c *Client) GetPaymentStatus(ctx context.Context, transactionID string) (string, error) {
	payload := map[string]string{"id": transactionID}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal status request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/api/payment/status", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create status request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute status request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read status response: %w", err)
	}

	var statusResp StatusResponse
	if err := json.Unmarshal(bodyBytes, &statusResp); err != nil {
		log.Printf("level=warn component=nhonga_client op=payment_status status=%d msg=\"unparsable response body\"", resp.StatusCode)
		return "", &ErrorResponse{StatusCode: resp.StatusCode}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !statusResp.Success {
		log.Printf("level=warn component=nhonga_client op=payment_status status=%d gateway_error=%q", resp.StatusCode, statusResp.Error)
		return "", &ErrorResponse{StatusCode: resp.StatusCode, Message: statusResp.Error}
	}

	return statusResp.Status, nil
}
