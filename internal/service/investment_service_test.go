package service

import (
	"context"
	"errors"
	"testing"

	"github.com/comdex/comdexapi/internal/eligibility"
	"github.com/comdex/comdexapi/internal/gateway"
	"github.com/comdex/comdexapi/internal/inflight"
	"github.com/comdex/comdexapi/internal/lifecycle"
	"github.com/comdex/comdexapi/internal/models"
	"github.com/comdex/comdexapi/pkg/utils/audit"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// executedFixture is an executed index holding one investment at a 60% loss
func executedFixture() *fakeGateway {
	gw := newFakeGateway()
	gw.indexes[1] = models.Index{ID: 1, Name: "Green Energy", Status: lifecycle.StatusExecuted}
	gw.investments = []models.Investment{{
		ID:           10,
		IndexID:      1,
		UserID:       7,
		Amount:       dec("500"),
		CurrentValue: dec("200"),
		Status:       models.InvestmentExecuted,
	}}
	gw.credits = dec("1000")
	return gw
}

func newInvestmentService(gw gateway.Gateway, rules eligibility.Rules) *InvestmentService {
	return NewInvestmentService(gw, rules, inflight.NewMemoryGuard(0), audit.Discard{})
}

func wantReason(t *testing.T, err error, reason eligibility.Reason) {
	t.Helper()
	var ie *IneligibleError
	if !errors.As(err, &ie) {
		t.Fatalf("err=%v want IneligibleError(%s)", err, reason)
	}
	if ie.Reason != reason {
		t.Fatalf("reason=%s want=%s", ie.Reason, reason)
	}
}

func TestEligibility_SixtyPercentLoss(t *testing.T) {
	svc := newInvestmentService(executedFixture(), eligibility.Rules{})

	sum, err := svc.Eligibility(context.Background(), testUser(), 10)
	if err != nil {
		t.Fatalf("Eligibility: %v", err)
	}
	if !sum.LossPercentage.Equal(dec("60")) {
		t.Fatalf("loss=%s want=60", sum.LossPercentage)
	}
	if !sum.InsuranceClaim.Allowed || !sum.EmergencyWithdrawal.Allowed {
		t.Fatalf("claim=%+v emergency=%+v want both allowed", sum.InsuranceClaim, sum.EmergencyWithdrawal)
	}
}

func TestClaimInsurance_CreditsOriginalAmount(t *testing.T) {
	gw := executedFixture()
	svc := newInvestmentService(gw, eligibility.Rules{})
	ctx := context.Background()

	res, err := svc.ClaimInsurance(ctx, testUser(), 10)
	if err != nil {
		t.Fatalf("ClaimInsurance: %v", err)
	}
	if !res.Settlement.AmountCredited.Equal(dec("500")) {
		t.Fatalf("credited=%s want=500", res.Settlement.AmountCredited)
	}
	if res.Settlement.Kind != models.SettlementClaimInsurance || res.Settlement.InvestmentID != 10 {
		t.Fatalf("settlement=%+v", res.Settlement)
	}
	if !res.Refreshed || len(res.Investments) != 1 || !res.Investments[0].InsuranceClaimed {
		t.Fatalf("refetched investments=%+v refreshed=%v", res.Investments, res.Refreshed)
	}
	if res.Credits == nil || !res.Credits.Credits.Equal(dec("1500")) {
		t.Fatalf("credits=%+v want=1500", res.Credits)
	}

	// the position is closed: every other action is refused locally
	_, err = svc.EmergencyWithdraw(ctx, testUser(), 10)
	wantReason(t, err, eligibility.ReasonAlreadyClaimed)
	if gw.count("EmergencyWithdraw") != 0 {
		t.Fatalf("backend called for a refused action")
	}
}

func TestTakeInsurance_SecondCallRejected(t *testing.T) {
	gw := executedFixture()
	svc := newInvestmentService(gw, eligibility.Rules{})
	ctx := context.Background()

	if _, err := svc.TakeInsurance(ctx, testUser(), 10); err != nil {
		t.Fatalf("first TakeInsurance: %v", err)
	}
	_, err := svc.TakeInsurance(ctx, testUser(), 10)
	wantReason(t, err, eligibility.ReasonAlreadyClaimed)

	if n := gw.count("TakeInsurance"); n != 1 {
		t.Fatalf("backend TakeInsurance calls=%d want=1", n)
	}
	if !gw.credits.Equal(dec("1500")) {
		t.Fatalf("credits=%s want=1500, credited once", gw.credits)
	}
}

func TestClaimInsurance_InsufficientLoss(t *testing.T) {
	gw := executedFixture()
	gw.investments[0].CurrentValue = dec("400") // 20% loss
	svc := newInvestmentService(gw, eligibility.Rules{})

	_, err := svc.ClaimInsurance(context.Background(), testUser(), 10)
	wantReason(t, err, eligibility.ReasonInsufficientLoss)

	if _, err := svc.EmergencyWithdraw(context.Background(), testUser(), 10); err != nil {
		t.Fatalf("EmergencyWithdraw at 20%% loss: %v", err)
	}
}

func TestSettle_InFlightRejected(t *testing.T) {
	gw := executedFixture()
	guard := inflight.NewMemoryGuard(0)
	svc := NewInvestmentService(gw, eligibility.Rules{}, guard, audit.Discard{})
	ctx := context.Background()

	release, err := guard.Acquire(ctx, inflight.Key(7, "close", 10))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := svc.Withdraw(ctx, testUser(), 10); !errors.Is(err, inflight.ErrInFlight) {
		t.Fatalf("err=%v want=ErrInFlight", err)
	}
	release()
	if gw.count("Withdraw") != 0 {
		t.Fatalf("backend called while another action was in flight")
	}
}

func TestSettle_UnknownInvestment(t *testing.T) {
	svc := newInvestmentService(executedFixture(), eligibility.Rules{})

	_, err := svc.ClaimInsurance(context.Background(), testUser(), 99)
	if gateway.KindOf(err) != gateway.KindNotFound {
		t.Fatalf("err=%v want=%s", err, gateway.KindNotFound)
	}
}

func TestSettle_RefetchFailureKeepsSettlement(t *testing.T) {
	gw := executedFixture()
	// first FetchCredits is the refetch after the settlement
	gw.failNth("FetchCredits", 1, &gateway.Error{Kind: gateway.KindNetwork})
	svc := newInvestmentService(gw, eligibility.Rules{})

	res, err := svc.Withdraw(context.Background(), testUser(), 10)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if res.Refreshed || res.Credits != nil {
		t.Fatalf("refreshed=%v credits=%v want stale marker", res.Refreshed, res.Credits)
	}
	if !res.Settlement.AmountCredited.Equal(dec("200")) {
		t.Fatalf("credited=%s want=200", res.Settlement.AmountCredited)
	}
}

func TestInvest(t *testing.T) {
	tests := []struct {
		name    string
		status  lifecycle.Status
		rules   eligibility.Rules
		amount  string
		reason  eligibility.Reason
		field   string
		warning string
	}{
		{name: "active", status: lifecycle.StatusActive, amount: "300"},
		{name: "zero amount", status: lifecycle.StatusActive, amount: "0", field: "amount"},
		{name: "negative amount", status: lifecycle.StatusActive, amount: "-5", field: "amount"},
		{name: "voting strict", status: lifecycle.StatusVoting, amount: "300", reason: eligibility.ReasonNotActive},
		{name: "voting allowed", status: lifecycle.StatusVoting, rules: eligibility.Rules{InvestDuringVoting: true}, amount: "300"},
		{name: "draft", status: lifecycle.StatusDraft, amount: "300", reason: eligibility.ReasonNotActive},
		{name: "draft allowed", status: lifecycle.StatusDraft, rules: eligibility.Rules{InvestInDraft: true}, amount: "300", warning: eligibility.WarningNewlyCreated},
		{name: "executed", status: lifecycle.StatusExecuted, amount: "300", reason: eligibility.ReasonNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			gw.indexes[3] = models.Index{ID: 3, Status: tt.status}
			gw.credits = dec("1000")
			svc := newInvestmentService(gw, tt.rules)

			res, err := svc.Invest(context.Background(), testUser(), 3, dec(tt.amount))
			switch {
			case tt.field != "":
				var ve *ValidationError
				if !errors.As(err, &ve) || ve.Field != tt.field {
					t.Fatalf("err=%v want ValidationError(%s)", err, tt.field)
				}
			case tt.reason != "":
				wantReason(t, err, tt.reason)
			default:
				if err != nil {
					t.Fatalf("Invest: %v", err)
				}
				if res.Warning != tt.warning {
					t.Fatalf("warning=%q want=%q", res.Warning, tt.warning)
				}
				if res.Credits == nil || !res.Credits.Credits.Equal(dec("700")) {
					t.Fatalf("credits=%+v want=700", res.Credits)
				}
				return
			}
			if gw.count("CreateInvestment") != 0 {
				t.Fatalf("backend called for a refused investment")
			}
		})
	}
}

func TestInvest_InsufficientCredits(t *testing.T) {
	gw := newFakeGateway()
	gw.indexes[3] = models.Index{ID: 3, Status: lifecycle.StatusActive}
	gw.credits = dec("100")
	svc := newInvestmentService(gw, eligibility.Rules{})

	_, err := svc.Invest(context.Background(), testUser(), 3, dec("300"))
	if !errors.Is(err, gateway.ErrInsufficientCredits) {
		t.Fatalf("err=%v want=%s", err, gateway.KindInsufficientCredits)
	}
}

func TestList_MissingIndexDegrades(t *testing.T) {
	gw := executedFixture()
	gw.investments = append(gw.investments, models.Investment{ID: 11, IndexID: 99, Amount: dec("50"), CurrentValue: dec("50")})
	svc := newInvestmentService(gw, eligibility.Rules{})

	list, err := svc.List(context.Background(), testUser())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Investments) != 2 {
		t.Fatalf("investments=%d want=2", len(list.Investments))
	}
	if list.Investments[0].IndexStatus != "executed" || list.Investments[0].IndexName != "Green Energy" {
		t.Fatalf("first=%+v", list.Investments[0])
	}
	if list.Investments[1].Eligibility.InsuranceClaim.Allowed {
		t.Fatalf("claim allowed without a known index")
	}
	if len(list.Unavailable) != 1 || list.Unavailable[0].Section != "index_99" || list.Unavailable[0].ErrorType != string(gateway.KindNotFound) {
		t.Fatalf("unavailable=%+v", list.Unavailable)
	}
}
