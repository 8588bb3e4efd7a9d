package cli

import (
	"bytes"
	"context"
	"testing"

	"boutique-credit/internal/app"
	"boutique-credit/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	app.ApplicationService

	submitted *app.DetteRequest
	status    string
	paid      decimal.Decimal
}

func (f *fakeService) SubmitDemande(_ context.Context, req app.DetteRequest) (*core.Dette, error) {
	f.submitted = &req
	return &core.Dette{ID: 7, ClientID: req.ClientID, Status: core.StatusInCours, TotalAmount: decimal.NewFromInt(2500)}, nil
}

func (f *fakeService) CreateDette(_ context.Context, req app.DetteRequest) (*core.Dette, error) {
	return &core.Dette{ID: 8, ClientID: req.ClientID, Status: core.StatusAccepte}, nil
}

func (f *fakeService) UpdateDetteStatus(_ context.Context, id int, status string) (*core.Dette, error) {
	f.status = status
	return &core.Dette{ID: id, Status: status}, nil
}

func (f *fakeService) RegisterPayment(_ context.Context, id int, amount decimal.Decimal) (*core.Dette, error) {
	f.paid = amount
	return &core.Dette{ID: id, AmountDue: decimal.NewFromInt(1000).Sub(amount)}, nil
}

func (f *fakeService) SendReminder(_ context.Context, clientID int) (*app.ReminderResult, error) {
	if clientID != 1 {
		return nil, core.Errorf(core.KindNotFound, "client %d not found", clientID)
	}
	return &app.ReminderResult{Notification: &core.Notification{ClientID: 1, Message: "Please pay"}, Source: "template"}, nil
}

func run(t *testing.T, svc *fakeService, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(svc, &out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSubmitParsesLines(t *testing.T) {
	svc := &fakeService{}
	out, err := run(t, svc, "dettes", "submit", "--client", "3", "--line", "1:2", "--line", "4:1")
	require.NoError(t, err)
	require.NotNil(t, svc.submitted)
	assert.Equal(t, 3, svc.submitted.ClientID)
	assert.Equal(t, []app.DetteLineRequest{{ArticleID: 1, Quantity: 2}, {ArticleID: 4, Quantity: 1}}, svc.submitted.Lines)
	assert.Contains(t, out, "Dette #7 created (IN_COURS), total 2500.00.")

	_, err = run(t, &fakeService{}, "dettes", "submit", "--client", "3", "--line", "1-2")
	assert.Error(t, err)
}

func TestAcceptAndCancel(t *testing.T) {
	svc := &fakeService{}
	out, err := run(t, svc, "dettes", "accept", "5")
	require.NoError(t, err)
	assert.Equal(t, core.StatusAccepte, svc.status)
	assert.Contains(t, out, "Dette #5 is now ACCEPTE.")

	_, err = run(t, svc, "dettes", "cancel", "5")
	require.NoError(t, err)
	assert.Equal(t, core.StatusAnnule, svc.status)

	_, err = run(t, svc, "dettes", "accept", "x")
	assert.Error(t, err)
}

func TestPay(t *testing.T) {
	svc := &fakeService{}
	out, err := run(t, svc, "dettes", "pay", "2", "250.5")
	require.NoError(t, err)
	assert.True(t, svc.paid.Equal(decimal.RequireFromString("250.5")))
	assert.Contains(t, out, "Remaining: 749.50")

	_, err = run(t, svc, "dettes", "pay", "2", "abc")
	assert.Error(t, err)
}

func TestRemind(t *testing.T) {
	out, err := run(t, &fakeService{}, "clients", "remind", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Please pay")

	_, err = run(t, &fakeService{}, "clients", "remind", "2")
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestParseLines(t *testing.T) {
	lines, err := parseLines([]string{"1:2", " 3 : 4 "})
	require.NoError(t, err)
	assert.Equal(t, []app.DetteLineRequest{{ArticleID: 1, Quantity: 2}, {ArticleID: 3, Quantity: 4}}, lines)

	_, err = parseLines([]string{"a:1"})
	assert.Error(t, err)
}
