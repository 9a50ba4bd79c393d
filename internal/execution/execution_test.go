package execution

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"optionsgate-go/internal/pricing"
	"optionsgate-go/internal/risk"
	"optionsgate-go/internal/signal"
)

type recordingSink struct {
	fills []signal.Fill
	err   error
}

func (s *recordingSink) ApplyFill(_ context.Context, f signal.Fill) error {
	if s.err != nil {
		return s.err
	}
	s.fills = append(s.fills, f)
	return nil
}

func quotedProposal(t *testing.T, side signal.Side, lots int64, quote float64) signal.Proposal {
	t.Helper()
	asOf := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	c, err := pricing.NewOptionContract("NIFTY", 19500, asOf.AddDate(0, 0, 30), pricing.Call, 50)
	if err != nil {
		t.Fatalf("contract: %v", err)
	}
	market := pricing.MarketSnapshot{Spot: 19500, Rate: 0.06, AsOf: asOf}
	if quote > 0 {
		market = market.WithOptionPrice(quote)
	}
	return signal.NewProposal("test", c, side, lots, market, 0.15, "")
}

func TestSubmitLogsOrder(t *testing.T) {
	var buf bytes.Buffer
	sink := &recordingSink{}
	exec := NewPaperExecutor(zerolog.New(&buf), sink)

	fill, err := exec.Submit(context.Background(), quotedProposal(t, signal.Buy, 3, 400), risk.Approved(3))
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "NIFTY") {
		t.Fatalf("log does not contain underlying: %s", buf.String())
	}
	if len(sink.fills) != 1 || sink.fills[0].ID != fill.ID {
		t.Fatalf("fill not forwarded to sink")
	}
	if !fill.Price.Equal(decimal.NewFromInt(400)) || fill.Lots != 3 {
		t.Fatalf("unexpected fill %+v", fill)
	}
}

func TestSubmitHonoursDecision(t *testing.T) {
	sink := &recordingSink{}
	exec := NewPaperExecutor(zerolog.Nop(), sink)

	_, err := exec.Submit(context.Background(), quotedProposal(t, signal.Buy, 5, 400), risk.Rejected("drawdown"))
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
	if len(sink.fills) != 0 {
		t.Fatalf("rejected proposal must not be submitted")
	}

	fill, err := exec.Submit(context.Background(), quotedProposal(t, signal.Buy, 5, 400), risk.Resized(2, "position size"))
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if fill.Lots != 2 || fill.SignedLots() != 2 {
		t.Fatalf("expected resized quantity 2, got %d", fill.Lots)
	}
}

func TestSubmitAppliesSlippage(t *testing.T) {
	exec := NewPaperExecutor(zerolog.Nop(), &recordingSink{}, WithSlippageBps(50))

	buy, err := exec.Submit(context.Background(), quotedProposal(t, signal.Buy, 1, 400), risk.Approved(1))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	sell, err := exec.Submit(context.Background(), quotedProposal(t, signal.Sell, 1, 400), risk.Approved(1))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !buy.Price.Equal(decimal.NewFromInt(402)) || !sell.Price.Equal(decimal.NewFromInt(398)) {
		t.Fatalf("unexpected slippage: buy %s sell %s", buy.Price, sell.Price)
	}
	if sell.SignedLots() != -1 {
		t.Fatalf("sell should be negative lots")
	}
}

func TestSubmitFallsBackToModelPrice(t *testing.T) {
	exec := NewPaperExecutor(zerolog.Nop(), &recordingSink{})
	fill, err := exec.Submit(context.Background(), quotedProposal(t, signal.Buy, 1, 0), risk.Approved(1))
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if got := fill.Price.InexactFloat64(); got < 383.84 || got > 383.86 {
		t.Fatalf("expected model price near 383.85, got %v", got)
	}
}

func TestSubmitPropagatesSinkError(t *testing.T) {
	exec := NewPaperExecutor(zerolog.Nop(), &recordingSink{err: errors.New("session closed")})
	if _, err := exec.Submit(context.Background(), quotedProposal(t, signal.Buy, 1, 400), risk.Approved(1)); err == nil {
		t.Fatalf("expected sink error")
	}
}
