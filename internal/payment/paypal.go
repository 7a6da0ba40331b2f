// Package payment reconciles provider-side payment state with local orders:
// an automated PayPal-style verifier and a manual staff attestation path
// behind the same confirmation flow.
package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eamaze/shopcore/internal/shop"
	"github.com/go-resty/resty/v2"
)

const Currency = "USD"

// ProviderOrder is the provider's view of a payment, normalized to minor units.
type ProviderOrder struct {
	Ref         string
	Status      string // CREATED | APPROVED | COMPLETED | ...
	AmountCents int
	Currency    string
	ApproveURL  string
}

// Client talks to the PayPal v2 checkout API. Access tokens are cached and
// renewed five minutes before expiry.
type Client struct {
	http         *resty.Client
	clientID     string
	clientSecret string

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewClient(baseURL, clientID, clientSecret string) *Client {
	return &Client{
		http:         resty.New().SetBaseURL(baseURL).SetTimeout(10 * time.Second),
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	var out tokenResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.clientID, c.clientSecret).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody("grant_type=client_credentials").
		SetResult(&out).
		Post("/v1/oauth2/token")
	if err != nil {
		return "", fmt.Errorf("paypal token: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("paypal token: %s", resp.Status())
	}
	c.token = out.AccessToken
	c.tokenExp = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - 5*time.Minute)
	return c.token, nil
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	Amount   amount    `json:"amount"`
	CustomID string    `json:"custom_id,omitempty"`
	Payments *payments `json:"payments,omitempty"`
}

type payments struct {
	Captures []struct {
		Amount amount `json:"amount"`
	} `json:"captures"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type orderResp struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	Links         []link         `json:"links"`
}

// CreateOrder opens a provider-side checkout for the order's due amount and
// returns the reference later confirmations arrive under.
func (c *Client) CreateOrder(ctx context.Context, o *shop.Order) (ref, approveURL string, err error) {
	tok, err := c.accessToken(ctx)
	if err != nil {
		return "", "", err
	}

	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []purchaseUnit{{
			Amount:   amount{CurrencyCode: Currency, Value: shop.FormatCents(o.DueCents())},
			CustomID: o.ID,
		}},
		"application_context": map[string]string{
			"user_action": "PAY_NOW",
		},
	}

	var out orderResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetBody(body).
		SetResult(&out).
		Post("/v2/checkout/orders")
	if err != nil {
		return "", "", fmt.Errorf("paypal create order: %w", err)
	}
	if resp.IsError() {
		return "", "", fmt.Errorf("paypal create order: %s", resp.Status())
	}
	for _, l := range out.Links {
		if l.Rel == "approve" {
			approveURL = l.Href
		}
	}
	return out.ID, approveURL, nil
}

// GetOrder fetches current provider state for a reference.
func (c *Client) GetOrder(ctx context.Context, ref string) (*ProviderOrder, error) {
	tok, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var out orderResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetResult(&out).
		Get("/v2/checkout/orders/" + ref)
	if err != nil {
		return nil, fmt.Errorf("paypal get order %s: %w", ref, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("paypal get order %s: %s", ref, resp.Status())
	}
	return normalize(&out)
}

// Capture finalizes an approved provider order.
func (c *Client) Capture(ctx context.Context, ref string) (*ProviderOrder, error) {
	tok, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var out orderResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetBody(map[string]any{}). // capture wants an empty JSON body
		SetResult(&out).
		Post("/v2/checkout/orders/" + ref + "/capture")
	if err != nil {
		return nil, fmt.Errorf("paypal capture %s: %w", ref, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("paypal capture %s: %s", ref, resp.Status())
	}
	return normalize(&out)
}

func normalize(o *orderResp) (*ProviderOrder, error) {
	p := &ProviderOrder{Ref: o.ID, Status: o.Status}
	for _, l := range o.Links {
		if l.Rel == "approve" {
			p.ApproveURL = l.Href
		}
	}
	if len(o.PurchaseUnits) > 0 {
		u := o.PurchaseUnits[0]
		amt := u.Amount
		if u.Payments != nil && len(u.Payments.Captures) > 0 {
			amt = u.Payments.Captures[0].Amount
		}
		if amt.Value != "" {
			cents, err := shop.ParseCents(amt.Value)
			if err != nil {
				return nil, err
			}
			p.AmountCents = cents
			p.Currency = amt.CurrencyCode
		}
	}
	return p, nil
}

// Initiator routes payment initiation by method. Crypto has no provider-side
// order: the reference is local and confirmation is staff attestation.
type Initiator struct {
	PayPal *Client
}

func (i *Initiator) Initiate(ctx context.Context, o *shop.Order) (string, string, error) {
	switch o.Method {
	case shop.MethodCrypto:
		return "crypto-" + o.ID, "", nil
	default:
		return i.PayPal.CreateOrder(ctx, o)
	}
}
