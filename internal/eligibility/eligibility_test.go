package eligibility

import (
	"testing"

	"github.com/comdex/comdexapi/internal/lifecycle"
	"github.com/comdex/comdexapi/internal/models"
	"github.com/shopspring/decimal"
)

func inv(amount, current int64) models.Investment {
	return models.Investment{
		ID:           1,
		IndexID:      7,
		Amount:       decimal.NewFromInt(amount),
		CurrentValue: decimal.NewFromInt(current),
		Status:       models.InvestmentActive,
	}
}

func indexIn(status lifecycle.Status) models.Index {
	return models.Index{
		ID:     7,
		Status: status,
		Companies: []models.Company{
			{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 5}, {ID: 6},
		},
	}
}

func TestLossPercentage(t *testing.T) {
	cases := []struct {
		amount, current int64
		want            int64
	}{
		{1000, 1000, 0},
		{1000, 550, 45},
		{1000, 850, 15},
		{1000, 1200, -20},
		{500, 200, 60},
	}
	for _, c := range cases {
		got := LossPercentage(inv(c.amount, c.current))
		if !got.Equal(decimal.NewFromInt(c.want)) {
			t.Fatalf("loss(%d,%d)=%s want=%d", c.amount, c.current, got, c.want)
		}
	}
	if got := LossPercentage(inv(0, 100)); !got.IsZero() {
		t.Fatalf("zero amount loss=%s want 0", got)
	}
}

func TestClaimAndWithdrawal_Thresholds(t *testing.T) {
	executed := indexIn(lifecycle.StatusExecuted)

	// 45% loss: both eligible
	if d := InsuranceClaim(executed, inv(1000, 550)); !d.Allowed {
		t.Fatalf("claim at 45%% denied: %s", d.Reason)
	}
	if d := EmergencyWithdrawal(executed, inv(1000, 550)); !d.Allowed {
		t.Fatalf("withdrawal at 45%% denied: %s", d.Reason)
	}

	// 15% loss: withdrawal only
	if d := InsuranceClaim(executed, inv(1000, 850)); d.Allowed || d.Reason != ReasonInsufficientLoss {
		t.Fatalf("claim at 15%% = %+v want INSUFFICIENT_LOSS", d)
	}
	if d := EmergencyWithdrawal(executed, inv(1000, 850)); !d.Allowed {
		t.Fatalf("withdrawal at 15%% denied: %s", d.Reason)
	}

	// gain: neither
	if d := InsuranceClaim(executed, inv(1000, 1200)); d.Allowed {
		t.Fatalf("claim on gain allowed")
	}
	if d := EmergencyWithdrawal(executed, inv(1000, 1200)); d.Allowed {
		t.Fatalf("withdrawal on gain allowed")
	}

	// exactly on the threshold
	if d := InsuranceClaim(executed, inv(1000, 600)); !d.Allowed {
		t.Fatalf("claim at exactly 40%% denied")
	}
	if d := EmergencyWithdrawal(executed, inv(1000, 900)); !d.Allowed {
		t.Fatalf("withdrawal at exactly 10%% denied")
	}
}

func TestClaimAndWithdrawal_RequireExecuted(t *testing.T) {
	for _, st := range []lifecycle.Status{lifecycle.StatusDraft, lifecycle.StatusVoting, lifecycle.StatusActive, lifecycle.StatusArchived} {
		if d := InsuranceClaim(indexIn(st), inv(500, 200)); d.Allowed || d.Reason != ReasonNotActive {
			t.Fatalf("%s claim=%+v want NOT_ACTIVE", st, d)
		}
		if d := EmergencyWithdrawal(indexIn(st), inv(500, 200)); d.Allowed || d.Reason != ReasonNotActive {
			t.Fatalf("%s withdrawal=%+v want NOT_ACTIVE", st, d)
		}
	}
}

func TestClaimed_BlocksEverything(t *testing.T) {
	claimed := inv(500, 200)
	claimed.InsuranceClaimed = true
	executed := indexIn(lifecycle.StatusExecuted)

	for name, d := range map[string]Decision{
		"claim":      InsuranceClaim(executed, claimed),
		"withdrawal": EmergencyWithdrawal(executed, claimed),
		"take":       TakeInsurance(claimed),
	} {
		if d.Allowed || d.Reason != ReasonAlreadyClaimed {
			t.Fatalf("%s=%+v want ALREADY_CLAIMED", name, d)
		}
	}
}

func TestWithdrawn_IsClosed(t *testing.T) {
	w := inv(500, 200)
	w.Status = models.InvestmentWithdrawn
	if d := TakeInsurance(w); d.Allowed || d.Reason != ReasonInvestmentClosed {
		t.Fatalf("take on withdrawn=%+v want INVESTMENT_CLOSED", d)
	}
	if d := InsuranceClaim(indexIn(lifecycle.StatusExecuted), w); d.Reason != ReasonInvestmentClosed {
		t.Fatalf("claim on withdrawn=%+v want INVESTMENT_CLOSED", d)
	}
}

func TestTakeInsurance_IndependentOfLoss(t *testing.T) {
	if d := TakeInsurance(inv(1000, 1500)); !d.Allowed {
		t.Fatalf("take insurance on gain denied: %s", d.Reason)
	}
}

func TestCanInvest(t *testing.T) {
	strict := Rules{}
	for _, st := range lifecycle.Statuses {
		d := strict.CanInvest(indexIn(st))
		if st == lifecycle.StatusActive {
			if !d.Allowed {
				t.Fatalf("active index not investable")
			}
			continue
		}
		if d.Allowed || d.Reason != ReasonNotActive {
			t.Fatalf("%s investable under strict rules: %+v", st, d)
		}
	}

	loose := Rules{InvestDuringVoting: true, InvestInDraft: true}
	if d := loose.CanInvest(indexIn(lifecycle.StatusVoting)); !d.Allowed {
		t.Fatalf("voting index not investable with InvestDuringVoting")
	}
	d := loose.CanInvest(indexIn(lifecycle.StatusDraft))
	if !d.Allowed || d.Warning != WarningNewlyCreated {
		t.Fatalf("draft decision=%+v want allowed with NEWLY_CREATED", d)
	}
	if d := loose.CanInvest(indexIn(lifecycle.StatusExecuted)); d.Allowed {
		t.Fatalf("executed index investable")
	}
}

func TestCanVote(t *testing.T) {
	voting := indexIn(lifecycle.StatusVoting)
	session := &models.VotingSession{ID: 3, IndexID: 7, IsActive: true, MinVotesPerUser: 1, MaxVotesAllowed: 3}
	holdings := []models.Investment{inv(100, 100)}
	rules := Rules{}

	if d := rules.CanVote(voting, holdings, session, nil); !d.Allowed {
		t.Fatalf("eligible voter denied: %s", d.Reason)
	}
	if d := rules.CanVote(indexIn(lifecycle.StatusActive), holdings, session, nil); d.Reason != ReasonNotActive {
		t.Fatalf("active index reason=%s want NOT_ACTIVE", d.Reason)
	}
	if d := rules.CanVote(voting, holdings, nil, nil); d.Reason != ReasonSessionInactive {
		t.Fatalf("nil session reason=%s want SESSION_INACTIVE", d.Reason)
	}
	closed := *session
	closed.IsActive = false
	if d := rules.CanVote(voting, holdings, &closed, nil); d.Reason != ReasonSessionInactive {
		t.Fatalf("inactive session reason=%s want SESSION_INACTIVE", d.Reason)
	}

	claimed := inv(100, 100)
	claimed.InsuranceClaimed = true
	other := inv(100, 100)
	other.IndexID = 99
	if d := rules.CanVote(voting, []models.Investment{claimed, other}, session, nil); d.Reason != ReasonNoInvestment {
		t.Fatalf("no open investment reason=%s want NO_INVESTMENT", d.Reason)
	}

	prior := []models.Vote{{SessionID: 3, CompanyID: 1}}
	if d := rules.CanVote(voting, holdings, session, prior); d.Reason != ReasonAlreadyVoted {
		t.Fatalf("revote reason=%s want ALREADY_VOTED", d.Reason)
	}
	if d := (Rules{AllowRevote: true}).CanVote(voting, holdings, session, prior); !d.Allowed {
		t.Fatalf("revote denied with AllowRevote: %s", d.Reason)
	}
}

func TestVoteSelectionValid(t *testing.T) {
	session := models.VotingSession{MinVotesPerUser: 1, MaxVotesAllowed: 5}
	index := indexIn(lifecycle.StatusVoting)

	cases := []struct {
		name string
		ids  []int64
		want Reason
	}{
		{"empty", nil, ReasonTooFewVotes},
		{"two", []int64{1, 2}, ReasonNone},
		{"six", []int64{1, 2, 3, 4, 5, 6}, ReasonTooManyVotes},
		{"duplicate", []int64{1, 1}, ReasonDuplicateCompany},
		{"foreign", []int64{1, 42}, ReasonUnknownCompany},
	}
	for _, c := range cases {
		d := VoteSelectionValid(c.ids, session, index)
		if d.Reason != c.want || d.Allowed != (c.want == ReasonNone) {
			t.Fatalf("%s: got=%+v want reason %q", c.name, d, c.want)
		}
	}

	strictMin := models.VotingSession{MinVotesPerUser: 3, MaxVotesAllowed: 5}
	if d := VoteSelectionValid([]int64{1, 2}, strictMin, index); d.Reason != ReasonTooFewVotes {
		t.Fatalf("below min reason=%s want TOO_FEW_VOTES", d.Reason)
	}
}

func TestSummarize_SixtyPercentLoss(t *testing.T) {
	s := Summarize(indexIn(lifecycle.StatusExecuted), inv(500, 200))
	if !s.InsuranceClaim.Allowed || !s.EmergencyWithdrawal.Allowed || !s.TakeInsurance.Allowed {
		t.Fatalf("summary=%+v want all actions allowed", s)
	}
	if !s.LossPercentage.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("loss=%s want 60", s.LossPercentage)
	}
}

func TestWithdrawal_RequiresCompletedPosition(t *testing.T) {
	open := inv(1000, 1100)
	if d := Withdrawal(open); d.Allowed || d.Reason != ReasonNotActive {
		t.Fatalf("withdraw active position=%+v want NOT_ACTIVE", d)
	}
	open.Status = models.InvestmentExecuted
	if d := Withdrawal(open); !d.Allowed {
		t.Fatalf("withdraw completed position denied: %s", d.Reason)
	}
	open.InsuranceClaimed = true
	if d := Withdrawal(open); d.Reason != ReasonAlreadyClaimed {
		t.Fatalf("withdraw claimed position=%+v want ALREADY_CLAIMED", d)
	}
}
