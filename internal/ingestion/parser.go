package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/TanmayDhobale/miniForesight/internal/core"
	"github.com/TanmayDhobale/miniForesight/internal/market"
)

// CommandSubjectPrefix is the subject space of inbound commands; the last
// token names the operation, e.g. foresight.commands.place_bet.
const CommandSubjectPrefix = "foresight.commands."

var ErrMalformedCommand = errors.New("malformed command")

// Command is one parsed inbound operation request.
type Command struct {
	Op        string
	RequestID string
	Caller    string // claimed identity; trusted only in dev mode
	Token     string

	MarketID     uint64
	FeeBps       uint16
	FeeRecipient string
	Create       market.CreateParams
	Outcome      int
	Amount       uint64
	Owner        string
	Identity     string
}

// --- JSON wire format ---
// Field names use snake_case to match upstream producers. Pointers mark
// fields whose absence must be distinguished from zero.

type commandJSON struct {
	RequestID string `json:"request_id"`
	Caller    string `json:"caller"`
	Token     string `json:"token"`

	MarketID       *uint64  `json:"market_id"`
	FeeBps         *uint16  `json:"fee_bps"`
	FeeRecipient   string   `json:"fee_recipient"`
	Question       string   `json:"question"`
	Outcomes       []string `json:"outcomes"`
	EndTime        *int64   `json:"end_time"`
	Oracle         string   `json:"oracle"`
	MinBet         *uint64  `json:"min_bet"`
	OutcomeIndex   *int     `json:"outcome_index"`
	WinningOutcome *int     `json:"winning_outcome"`
	Amount         *uint64  `json:"amount"`
	Owner          string   `json:"owner"`
	Identity       string   `json:"identity"`
}

// OpFromSubject extracts the operation from a command subject.
func OpFromSubject(subject string) (string, error) {
	op, ok := strings.CutPrefix(subject, CommandSubjectPrefix)
	if !ok || op == "" || strings.Contains(op, ".") {
		return "", fmt.Errorf("%w: subject %q", ErrMalformedCommand, subject)
	}
	return op, nil
}

// ParseCommand decodes a command published on subject.
func ParseCommand(subject string, data []byte) (*Command, error) {
	op, err := OpFromSubject(subject)
	if err != nil {
		return nil, err
	}

	var j commandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedCommand, op, err)
	}

	cmd := &Command{
		Op:        op,
		RequestID: strings.TrimSpace(j.RequestID),
		Caller:    j.Caller,
		Token:     j.Token,
		Owner:     j.Owner,
		Identity:  j.Identity,
	}

	switch op {
	case core.OpInitialize:
		if j.FeeBps == nil {
			return nil, missing(op, "fee_bps")
		}
		cmd.FeeBps = *j.FeeBps
		cmd.FeeRecipient = j.FeeRecipient

	case core.OpCreateMarket:
		if j.MarketID == nil {
			return nil, missing(op, "market_id")
		}
		if j.EndTime == nil {
			return nil, missing(op, "end_time")
		}
		if j.MinBet == nil {
			return nil, missing(op, "min_bet")
		}
		cmd.MarketID = *j.MarketID
		cmd.Create = market.CreateParams{
			ID:       *j.MarketID,
			Question: j.Question,
			Outcomes: j.Outcomes,
			EndTime:  *j.EndTime,
			Oracle:   j.Oracle,
			MinBet:   *j.MinBet,
		}

	case core.OpPlaceBet:
		if j.MarketID == nil {
			return nil, missing(op, "market_id")
		}
		if j.OutcomeIndex == nil {
			return nil, missing(op, "outcome_index")
		}
		if j.Amount == nil {
			return nil, missing(op, "amount")
		}
		cmd.MarketID = *j.MarketID
		cmd.Outcome = *j.OutcomeIndex
		cmd.Amount = *j.Amount

	case core.OpResolveMarket:
		if j.MarketID == nil {
			return nil, missing(op, "market_id")
		}
		if j.WinningOutcome == nil {
			return nil, missing(op, "winning_outcome")
		}
		cmd.MarketID = *j.MarketID
		cmd.Outcome = *j.WinningOutcome

	case core.OpClaimWinnings, core.OpCollectFees, core.OpCloseMarket:
		if j.MarketID == nil {
			return nil, missing(op, "market_id")
		}
		cmd.MarketID = *j.MarketID

	case core.OpDeposit:
		if j.Amount == nil {
			return nil, missing(op, "amount")
		}
		if strings.TrimSpace(j.Identity) == "" {
			return nil, missing(op, "identity")
		}
		cmd.Amount = *j.Amount

	case core.OpWithdraw:
		if j.Amount == nil {
			return nil, missing(op, "amount")
		}
		cmd.Amount = *j.Amount

	default:
		return nil, fmt.Errorf("%w: unknown operation %q", ErrMalformedCommand, op)
	}

	return cmd, nil
}

func missing(op, field string) error {
	return fmt.Errorf("%w: %s requires %s", ErrMalformedCommand, op, field)
}
