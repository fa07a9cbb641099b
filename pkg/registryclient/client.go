/**
 * @description
 * This package provides a client for the external property and customer
 * registries. The financial core treats both registries as read-only: it
 * resolves property attributes for fee calculation and validates customer
 * references at account-open time, and writes nothing back.
 *
 * @dependencies
 * - encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package registryclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is a client for a registry HTTP API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new registry client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// PropertyRecord is the registry's view of one physical unit.
type PropertyRecord struct {
	Code           string  `json:"code"`
	Company        string  `json:"company"`
	OwnershipShare float64 `json:"ownership_share"`
	BuiltArea      float64 `json:"built_area"`
	UnitType       string  `json:"unit_type"`
	Active         bool    `json:"active"`
}

// CustomerRecord is the registry's view of one customer.
type CustomerRecord struct {
	Ref           string `json:"ref"`
	Company       string `json:"company"`
	CustomerGroup string `json:"customer_group"`
	Active        bool   `json:"active"`
}

// ErrorResponse represents an error returned by a registry API.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("registry api error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("registry api error (%d)", e.StatusCode)
}

// NotFound reports whether the error is a registry 404.
func (e *ErrorResponse) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// GetProperty fetches one property record by company and code.
func (c *Client) GetProperty(ctx context.Context, company, code string) (*PropertyRecord, error) {
	var record PropertyRecord
	path := fmt.Sprintf("/v1/properties/%s/%s", url.PathEscape(company), url.PathEscape(code))
	if err := c.get(ctx, path, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListActiveProperties fetches the active property records of a company.
func (c *Client) ListActiveProperties(ctx context.Context, company string) ([]PropertyRecord, error) {
	var records []PropertyRecord
	path := fmt.Sprintf("/v1/properties/%s?active=true", url.PathEscape(company))
	if err := c.get(ctx, path, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetCustomer fetches one customer record by company and reference.
func (c *Client) GetCustomer(ctx context.Context, company, ref string) (*CustomerRecord, error) {
	var record CustomerRecord
	path := fmt.Sprintf("/v1/customers/%s/%s", url.PathEscape(company), url.PathEscape(ref))
	if err := c.get(ctx, path, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("x-internal-api-key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &ErrorResponse{StatusCode: resp.StatusCode}
		body, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode registry response: %w", err)
	}
	return nil
}
