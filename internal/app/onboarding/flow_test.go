// internal/app/onboarding/flow_test.go
package onboarding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/townboard/internal/app/billing"
	"github.com/dalemusser/townboard/internal/app/identity"
	userstore "github.com/dalemusser/townboard/internal/app/store/users"
	"github.com/dalemusser/townboard/internal/domain/models"
	"go.uber.org/zap"
)

type fakeUsers struct {
	records   map[string]*models.User
	upserts   []userstore.OnboardingWrite
	upsertErr error
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := f.records[id]; ok {
		return u, nil
	}
	return nil, userstore.ErrNotFound
}

func (f *fakeUsers) UpsertOnboarding(_ context.Context, w userstore.OnboardingWrite) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, w)
	return nil
}

type fakeIdentities struct {
	existing  map[string]*identity.Identity // email → identity
	createErr error
	created   []string
	deleted   []string
	nextUID   string
}

func (f *fakeIdentities) LookupByEmail(_ context.Context, email string) (*identity.Identity, error) {
	if id, ok := f.existing[email]; ok {
		return id, nil
	}
	return nil, identity.ErrNotFound
}

func (f *fakeIdentities) Create(_ context.Context, email, password string) (*identity.Identity, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	uid := f.nextUID
	if uid == "" {
		uid = "uid_new"
	}
	f.created = append(f.created, uid)
	return &identity.Identity{UID: uid, Email: email}, nil
}

func (f *fakeIdentities) Delete(_ context.Context, uid string) error {
	f.deleted = append(f.deleted, uid)
	return nil
}

type fakeBilling struct {
	customerID  string
	invoice     *billing.Invoice
	refetched   *billing.Invoice
	session     *billing.CheckoutSession
	sessionErr  error
	invoiceErr  error
	lastInvoice billing.InvoiceParams
	lastSession billing.CheckoutSessionParams
}

func (f *fakeBilling) EnsureCustomer(_ context.Context, existingID, _, _ string) (string, error) {
	if existingID != "" {
		return existingID, nil
	}
	if f.customerID == "" {
		return "cus_test", nil
	}
	return f.customerID, nil
}

func (f *fakeBilling) CreateCheckoutSession(_ context.Context, p billing.CheckoutSessionParams) (*billing.CheckoutSession, error) {
	f.lastSession = p
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	if f.session != nil {
		return f.session, nil
	}
	return &billing.CheckoutSession{ID: "cs_1", URL: "https://pay.example/cs_1", SubscriptionID: "sub_1"}, nil
}

func (f *fakeBilling) CreateInvoice(_ context.Context, p billing.InvoiceParams) (*billing.Invoice, error) {
	f.lastInvoice = p
	if f.invoiceErr != nil {
		return nil, f.invoiceErr
	}
	if f.invoice != nil {
		return f.invoice, nil
	}
	return &billing.Invoice{ID: "in_1", PDFURL: "https://files.example/in_1.pdf"}, nil
}

func (f *fakeBilling) GetInvoice(_ context.Context, id string) (*billing.Invoice, error) {
	if f.refetched != nil {
		return f.refetched, nil
	}
	return &billing.Invoice{ID: id}, nil
}

func testPrices() billing.PriceTable {
	return billing.PriceTable{
		{Service: models.ServiceAdvertiser, Cycle: models.CycleAnnual}:  "price_adv_year",
		{Service: models.ServiceAdvertiser, Cycle: models.CycleMonthly}: "price_adv_month",
		{Service: models.ServiceRecruiter, Cycle: models.CycleAnnual}:   "price_rec_year",
	}
}

func newTestFlow(users *fakeUsers, idp *fakeIdentities, bill *fakeBilling) *Flow {
	if users == nil {
		users = &fakeUsers{}
	}
	if idp == nil {
		idp = &fakeIdentities{}
	}
	if bill == nil {
		bill = &fakeBilling{}
	}
	f := NewFlow(users, idp, bill, Config{
		Prices:             testPrices(),
		CheckoutSuccessURL: "https://town.example/done",
		CheckoutCancelURL:  "https://town.example/cancel",
	}, zap.NewNop())
	f.sleep = func(time.Duration) {} // no real waiting in tests
	return f
}

func TestInvoiceOnboardingCreatesIdentityAndPendingStatus(t *testing.T) {
	users := &fakeUsers{}
	idp := &fakeIdentities{nextUID: "uid_7"}
	bill := &fakeBilling{}
	f := newTestFlow(users, idp, bill)

	res, err := f.StartInvoiceOnboarding(context.Background(), InvoiceInput{
		Email:    " New@Example.COM ",
		Password: "hunter22",
		Company:  CompanyInfo{Name: "Acme Signs", TaxID: "DE12345"},
		Service:  models.ServiceAdvertiser,
	})
	if err != nil {
		t.Fatalf("StartInvoiceOnboarding: %v", err)
	}
	if res.UserID != "uid_7" || res.InvoiceID != "in_1" || res.InvoiceURL == "" {
		t.Fatalf("result = %+v", res)
	}
	if len(idp.created) != 1 {
		t.Fatalf("created identities = %v, want one", idp.created)
	}
	if bill.lastInvoice.PriceID != "price_adv_year" {
		t.Fatalf("invoice price = %q, want the annual advertiser price", bill.lastInvoice.PriceID)
	}

	if len(users.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(users.upserts))
	}
	w := users.upserts[0]
	if w.Status != models.StatusPendingInvoice {
		t.Fatalf("status = %q, want pending_invoice", w.Status)
	}
	if w.Email != "new@example.com" {
		t.Fatalf("email = %q, want normalized lowercase", w.Email)
	}
	if w.Company == "" {
		t.Fatal("sanitized company info was dropped")
	}
	if w.SubscriptionID != "" {
		t.Fatal("invoice path wrote a subscription id")
	}
}

func TestInvoiceOnboardingRequiresPasswordForNewEmail(t *testing.T) {
	f := newTestFlow(nil, &fakeIdentities{}, nil)

	_, err := f.StartInvoiceOnboarding(context.Background(), InvoiceInput{
		Email:   "new@example.com",
		Service: models.ServiceAdvertiser,
	})
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
}

func TestInvoiceOnboardingExistingIdentityNeedsNoPassword(t *testing.T) {
	idp := &fakeIdentities{existing: map[string]*identity.Identity{
		"old@example.com": {UID: "uid_old", Email: "old@example.com"},
	}}
	users := &fakeUsers{}
	f := newTestFlow(users, idp, nil)

	res, err := f.StartInvoiceOnboarding(context.Background(), InvoiceInput{
		Email:   "old@example.com",
		Service: models.ServiceRecruiter,
	})
	if err != nil {
		t.Fatalf("StartInvoiceOnboarding: %v", err)
	}
	if res.UserID != "uid_old" {
		t.Fatalf("user id = %q, want the existing identity", res.UserID)
	}
	if len(idp.created) != 0 {
		t.Fatal("created a new identity for an existing email")
	}
}

func TestInvoiceOnboardingPriceNotConfigured(t *testing.T) {
	idp := &fakeIdentities{existing: map[string]*identity.Identity{
		"a@b.co": {UID: "u1", Email: "a@b.co"},
	}}
	f := NewFlow(&fakeUsers{}, idp, &fakeBilling{}, Config{Prices: billing.PriceTable{}}, zap.NewNop())

	_, err := f.StartInvoiceOnboarding(context.Background(), InvoiceInput{
		Email:   "a@b.co",
		Service: models.ServiceAdvertiser,
	})
	if !errors.Is(err, ErrPriceNotConfigured) {
		t.Fatalf("err = %v, want ErrPriceNotConfigured", err)
	}
}

func TestInvoiceOnboardingRetriesMissingPDF(t *testing.T) {
	idp := &fakeIdentities{existing: map[string]*identity.Identity{
		"a@b.co": {UID: "u1", Email: "a@b.co"},
	}}
	bill := &fakeBilling{
		invoice:   &billing.Invoice{ID: "in_slow"}, // no PDF yet
		refetched: &billing.Invoice{ID: "in_slow", PDFURL: "https://files.example/in_slow.pdf"},
	}
	users := &fakeUsers{}
	f := newTestFlow(users, idp, bill)

	slept := false
	f.sleep = func(time.Duration) { slept = true }

	res, err := f.StartInvoiceOnboarding(context.Background(), InvoiceInput{
		Email:   "a@b.co",
		Service: models.ServiceAdvertiser,
	})
	if err != nil {
		t.Fatalf("StartInvoiceOnboarding: %v", err)
	}
	if !slept {
		t.Fatal("retry path did not wait before refetching")
	}
	if res.InvoiceURL != "https://files.example/in_slow.pdf" {
		t.Fatalf("invoice url = %q, want the refetched document", res.InvoiceURL)
	}
}

func TestInvoiceOnboardingDocumentTimeout(t *testing.T) {
	idp := &fakeIdentities{existing: map[string]*identity.Identity{
		"a@b.co": {UID: "u1", Email: "a@b.co"},
	}}
	bill := &fakeBilling{
		invoice:   &billing.Invoice{ID: "in_stuck"},
		refetched: &billing.Invoice{ID: "in_stuck"}, // still no PDF
	}
	users := &fakeUsers{}
	f := newTestFlow(users, idp, bill)

	_, err := f.StartInvoiceOnboarding(context.Background(), InvoiceInput{
		Email:   "a@b.co",
		Service: models.ServiceAdvertiser,
	})
	if !errors.Is(err, ErrDocumentTimeout) {
		t.Fatalf("err = %v, want ErrDocumentTimeout", err)
	}
	if len(users.upserts) != 0 {
		t.Fatal("timed-out invoice still wrote a provisional status")
	}
}

func TestCheckoutOnboardingWritesPendingCheckout(t *testing.T) {
	users := &fakeUsers{}
	idp := &fakeIdentities{nextUID: "uid_c"}
	bill := &fakeBilling{}
	f := newTestFlow(users, idp, bill)

	res, err := f.StartCheckoutOnboarding(context.Background(), CheckoutInput{
		Email:    "card@example.com",
		Password: "hunter22",
		Service:  models.ServiceAdvertiser,
		Cycle:    models.CycleMonthly,
	})
	if err != nil {
		t.Fatalf("StartCheckoutOnboarding: %v", err)
	}
	if res.CheckoutURL == "" || res.SessionID != "cs_1" {
		t.Fatalf("result = %+v", res)
	}
	if bill.lastSession.PriceID != "price_adv_month" {
		t.Fatalf("session price = %q, want the monthly advertiser price", bill.lastSession.PriceID)
	}

	if len(users.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(users.upserts))
	}
	w := users.upserts[0]
	if w.Status != models.StatusPendingCheckout {
		t.Fatalf("status = %q, want pending_checkout", w.Status)
	}
	if w.SubscriptionID != "sub_1" {
		t.Fatalf("subscription id = %q, want the speculative reference", w.SubscriptionID)
	}
}

func TestCheckoutFailureDeletesNewlyCreatedIdentity(t *testing.T) {
	users := &fakeUsers{}
	idp := &fakeIdentities{nextUID: "uid_tmp"}
	bill := &fakeBilling{sessionErr: errors.New("provider unavailable")}
	f := newTestFlow(users, idp, bill)

	_, err := f.StartCheckoutOnboarding(context.Background(), CheckoutInput{
		Email:    "fresh@example.com",
		Password: "hunter22",
		Service:  models.ServiceRecruiter,
		Cycle:    models.CycleAnnual,
	})
	if err == nil {
		t.Fatal("expected checkout failure")
	}
	if len(idp.deleted) != 1 || idp.deleted[0] != "uid_tmp" {
		t.Fatalf("deleted = %v, want the newly created identity", idp.deleted)
	}
}

func TestCheckoutFailureKeepsExistingIdentity(t *testing.T) {
	idp := &fakeIdentities{existing: map[string]*identity.Identity{
		"old@example.com": {UID: "uid_keep", Email: "old@example.com"},
	}}
	bill := &fakeBilling{sessionErr: errors.New("provider unavailable")}
	f := newTestFlow(&fakeUsers{}, idp, bill)

	_, err := f.StartCheckoutOnboarding(context.Background(), CheckoutInput{
		Email:   "old@example.com",
		Service: models.ServiceRecruiter,
		Cycle:   models.CycleAnnual,
	})
	if err == nil {
		t.Fatal("expected checkout failure")
	}
	if len(idp.deleted) != 0 {
		t.Fatalf("deleted = %v, an existing identity must never be cleaned up", idp.deleted)
	}
}

func TestCheckoutConflictingIdentity(t *testing.T) {
	idp := &fakeIdentities{createErr: identity.ErrEmailTaken}
	f := newTestFlow(&fakeUsers{}, idp, nil)

	_, err := f.StartCheckoutOnboarding(context.Background(), CheckoutInput{
		Email:    "raced@example.com",
		Password: "hunter22",
		Service:  models.ServiceAdvertiser,
		Cycle:    models.CycleMonthly,
	})
	if !errors.Is(err, ErrConflictingIdentity) {
		t.Fatalf("err = %v, want ErrConflictingIdentity", err)
	}
}

func TestOnboardingRejectsInvalidInput(t *testing.T) {
	f := newTestFlow(nil, nil, nil)

	cases := []struct {
		name string
		run  func() error
	}{
		{"empty email invoice", func() error {
			_, err := f.StartInvoiceOnboarding(context.Background(), InvoiceInput{Service: models.ServiceAdvertiser})
			return err
		}},
		{"bad service invoice", func() error {
			_, err := f.StartInvoiceOnboarding(context.Background(), InvoiceInput{Email: "a@b.co", Service: "classifieds"})
			return err
		}},
		{"bad cycle checkout", func() error {
			_, err := f.StartCheckoutOnboarding(context.Background(), CheckoutInput{Email: "a@b.co", Service: models.ServiceAdvertiser, Cycle: "weekly"})
			return err
		}},
	}
	for _, tc := range cases {
		if err := tc.run(); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: err = %v, want ErrInvalidInput", tc.name, err)
		}
	}
}

func TestCleanCompanyStripsMarkup(t *testing.T) {
	f := newTestFlow(nil, nil, nil)
	got := f.cleanCompany(CompanyInfo{
		Name:    "<script>alert(1)</script>Acme",
		Address: "  1 Main St  ",
	})
	if got != "Acme, 1 Main St" {
		t.Fatalf("cleanCompany = %q", got)
	}
}
