// internal/app/billing/stripe.go
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"
)

// Client is the Stripe-backed billing adapter.
type Client struct {
	api *client.API
	log *zap.Logger
}

// NewClient builds a billing client for the given secret key.
func NewClient(secretKey string, logger *zap.Logger) *Client {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Client{api: api, log: logger}
}

// EnsureCustomer returns a live customer id for the identity, creating one
// only when existingID is empty or no longer valid. Customer creation is
// idempotent per user at the flow level: once a live id is recorded it is
// never recreated.
func (c *Client) EnsureCustomer(ctx context.Context, existingID, email, userID string) (string, error) {
	if existingID != "" {
		cust, err := c.api.Customers.Get(existingID, &stripe.CustomerParams{
			Params: stripe.Params{Context: ctx},
		})
		if err == nil && !cust.Deleted {
			return cust.ID, nil
		}
		if err != nil && !isResourceMissing(err) {
			return "", fmt.Errorf("validate billing customer %s: %w", existingID, err)
		}
		c.log.Warn("recorded billing customer no longer valid, recreating",
			zap.String("customer_id", existingID),
			zap.String("user_id", userID))
	}

	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(email),
	}
	params.AddMetadata(MetaUserID, userID)

	cust, err := c.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing customer: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession opens a subscription-mode checkout for one price.
// The identity and service ride along as subscription metadata so the
// confirming events can be resolved without a reverse lookup.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params:     stripe.Params{Context: ctx},
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(p.CustomerID),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				MetaUserID:  p.UserID,
				MetaService: string(p.Service),
			},
		},
	}
	params.AddMetadata(MetaUserID, p.UserID)
	params.AddMetadata(MetaService, string(p.Service))

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	out := &CheckoutSession{ID: sess.ID, URL: sess.URL}
	if sess.Subscription != nil {
		out.SubscriptionID = sess.Subscription.ID
	} else {
		// The provider has not allocated the subscription yet; record the
		// session id as the provisional reference. The event processor
		// replaces it once the confirming event arrives.
		out.SubscriptionID = sess.ID
	}
	return out, nil
}

// CreateInvoice creates, populates, and finalizes a send-invoice for one
// price. The returned PDFURL may still be empty; the document is generated
// asynchronously and callers retry via GetInvoice.
func (c *Client) CreateInvoice(ctx context.Context, p InvoiceParams) (*Invoice, error) {
	invParams := &stripe.InvoiceParams{
		Params:           stripe.Params{Context: ctx},
		Customer:         stripe.String(p.CustomerID),
		CollectionMethod: stripe.String(string(stripe.InvoiceCollectionMethodSendInvoice)),
		DaysUntilDue:     stripe.Int64(p.DaysUntilDue),
	}
	invParams.AddMetadata(MetaUserID, p.UserID)
	invParams.AddMetadata(MetaService, string(p.Service))

	inv, err := c.api.Invoices.New(invParams)
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	_, err = c.api.InvoiceItems.New(&stripe.InvoiceItemParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(p.CustomerID),
		Invoice:  stripe.String(inv.ID),
		Price:    stripe.String(p.PriceID),
	})
	if err != nil {
		return nil, fmt.Errorf("add invoice item: %w", err)
	}

	final, err := c.api.Invoices.FinalizeInvoice(inv.ID, &stripe.InvoiceFinalizeInvoiceParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("finalize invoice: %w", err)
	}

	return &Invoice{ID: final.ID, PDFURL: final.InvoicePDF, HostedURL: final.HostedInvoiceURL}, nil
}

// GetInvoice refetches an invoice, used to pick up the asynchronously
// generated payable document.
func (c *Client) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	inv, err := c.api.Invoices.Get(id, &stripe.InvoiceParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("get invoice %s: %w", id, err)
	}
	return &Invoice{ID: inv.ID, PDFURL: inv.InvoicePDF, HostedURL: inv.HostedInvoiceURL}, nil
}

// SubscriptionMetadata fetches the metadata attached to a subscription.
// Used as the secondary identity-resolution path for events whose payload
// carries no metadata of its own.
func (c *Client) SubscriptionMetadata(ctx context.Context, subscriptionID string) (map[string]string, error) {
	sub, err := c.api.Subscriptions.Get(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", subscriptionID, err)
	}
	return sub.Metadata, nil
}

// Transfer executes one aggregate fund transfer and returns the external
// transfer id. The idempotency key guards against double-pay if the same
// aggregate is retried after a network failure.
func (c *Client) Transfer(ctx context.Context, p TransferParams) (string, error) {
	params := &stripe.TransferParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(p.Amount),
		Currency:      stripe.String(p.Currency),
		Destination:   stripe.String(p.DestinationID),
		TransferGroup: stripe.String(p.TransferGroup),
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	tr, err := c.api.Transfers.New(params)
	if err != nil {
		return "", fmt.Errorf("create transfer: %w", err)
	}
	return tr.ID, nil
}

func isResourceMissing(err error) bool {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		return sErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}
