package storage

import (
	"fmt"
	"strings"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/solana"
)

// ValidateMint rejects blank mint addresses.
func ValidateMint(mint string) error {
	if strings.TrimSpace(mint) == "" {
		return fmt.Errorf("%w: token mint is empty", ErrInvalidInput)
	}
	return nil
}

// ValidateHolding checks a holding before it is written.
func ValidateHolding(h *domain.HoldingRecord) error {
	if h == nil {
		return fmt.Errorf("%w: holding is nil", ErrInvalidInput)
	}
	if err := ValidateMint(h.Token); err != nil {
		return err
	}
	if h.Time <= 0 {
		return fmt.Errorf("%w: holding time must be positive", ErrInvalidInput)
	}
	if h.Slot <= 0 {
		return fmt.Errorf("%w: holding slot must be positive", ErrInvalidInput)
	}
	if strings.TrimSpace(h.Program) == "" {
		return fmt.Errorf("%w: holding program is empty", ErrInvalidInput)
	}
	if h.Balance < 0 || h.SolPaid < 0 || h.SolFeePaid < 0 || h.SolFeePaidUSDC < 0 || h.PerTokenPaidUSDC < 0 {
		return fmt.Errorf("%w: holding amounts must be non-negative", ErrInvalidInput)
	}
	if h.SolPaidUSDC != nil && *h.SolPaidUSDC < 0 {
		return fmt.Errorf("%w: holding usd paid must be non-negative", ErrInvalidInput)
	}
	if h.WalletAddress != "" {
		if err := solana.ValidateWalletAddress(h.WalletAddress); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return nil
}

// ValidateNewToken checks a discovered token before it is written.
func ValidateNewToken(t *domain.NewTokenRecord) error {
	if t == nil {
		return fmt.Errorf("%w: token is nil", ErrInvalidInput)
	}
	if strings.TrimSpace(t.Mint) == "" || strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.Creator) == "" || t.Time <= 0 {
		return fmt.Errorf("%w: token data requires mint, name, creator and a positive time", ErrInvalidInput)
	}
	return nil
}

// ValidateNameOrCreator checks lookup arguments for FindByNameOrCreator.
func ValidateNameOrCreator(name, creator string) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(creator) == "" {
		return fmt.Errorf("%w: name and creator are required", ErrInvalidInput)
	}
	return nil
}

// ValidateSimulatedTrade checks a paper trade before it is written.
func ValidateSimulatedTrade(t *domain.SimulatedTrade) error {
	if t == nil {
		return fmt.Errorf("%w: trade is nil", ErrInvalidInput)
	}
	if err := ValidateMint(t.TokenMint); err != nil {
		return err
	}
	if t.Timestamp <= 0 {
		return fmt.Errorf("%w: trade timestamp must be positive", ErrInvalidInput)
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("%w: unknown trade type %q", ErrInvalidInput, t.Type)
	}
	if t.AmountSOL < 0 || t.AmountToken < 0 || t.Fees < 0 {
		return fmt.Errorf("%w: trade amounts must be non-negative", ErrInvalidInput)
	}
	if t.Type == domain.TradeTypeBuy && t.PricePerToken <= 0 {
		return fmt.Errorf("%w: buy price must be positive", ErrInvalidInput)
	}
	return nil
}

// ValidateBalance rejects negative balances.
func ValidateBalance(balanceSOL float64) error {
	if balanceSOL < 0 {
		return fmt.Errorf("%w: balance must be non-negative", ErrInvalidInput)
	}
	return nil
}
