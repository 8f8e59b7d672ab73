package parser

import (
	"context"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/solana"
)

// unsafeDecimals is the assumed token precision when the payload carries
// only UI amounts. Most SPL meme tokens use 6.
const unsafeDecimals = 6

// Parser converts raw transaction records into canonical swap descriptors
// for one monitored wallet. It is pure apart from the single optional RPC
// lookup on the balance-delta path.
type Parser struct {
	wallet                string
	rpc                   solana.RPCClient // nil disables the balance-delta path
	restrictIntermediates bool
	log                   *logrus.Entry
}

// New creates a parser for the given upstream wallet. When
// restrictIntermediates is set, routing-asset legs (wSOL, stablecoins, LSTs)
// are excluded from canonical token selection.
func New(wallet string, rpc solana.RPCClient, restrictIntermediates bool, log *logrus.Logger) *Parser {
	return &Parser{
		wallet:                wallet,
		rpc:                   rpc,
		restrictIntermediates: restrictIntermediates,
		log:                   log.WithField("component", "parser"),
	}
}

func (p *Parser) excludedMint(mint string) bool {
	return p.restrictIntermediates && domain.IsIntermediateMint(mint)
}

// Parse extracts at most one swap descriptor from a raw transaction.
// Returns (nil, false) when the transaction is not a swap by the wallet.
// Paths are tried in order of trustworthiness: structured swap event,
// pre/post balance deltas via RPC, then transfer-list reconstruction.
func (p *Parser) Parse(ctx context.Context, raw *RawTransaction, source domain.SourceTag) (*domain.SwapDescriptor, bool) {
	if raw.Signature == "" || raw.TransactionError != nil {
		return nil, false
	}

	if desc, ok := p.parseSwapEvent(raw, source); ok {
		return desc, true
	}
	if desc, ok := p.parseBalanceDeltas(ctx, raw.Signature, source); ok {
		return desc, true
	}
	if desc, ok := p.parseTransferList(raw, source); ok {
		return desc, true
	}
	return nil, false
}

// ParseSignature runs only the balance-delta path for a bare signature, used
// by the subscription and poll sources which have no enriched payload.
func (p *Parser) ParseSignature(ctx context.Context, signature string, source domain.SourceTag) (*domain.SwapDescriptor, bool) {
	return p.parseBalanceDeltas(ctx, signature, source)
}

// parseSwapEvent handles the structured aggregator event: native in with
// token out is a BUY, native out with token in is a SELL, both restricted to
// legs belonging to the monitored wallet.
func (p *Parser) parseSwapEvent(raw *RawTransaction, source domain.SourceTag) (*domain.SwapDescriptor, bool) {
	swap := raw.Events.Swap
	if swap == nil {
		return nil, false
	}

	nativeIn := p.walletNativeAmount(swap.NativeInput)
	nativeOut := p.walletNativeAmount(swap.NativeOutput)

	var (
		direction domain.Direction
		lamports  int64
		legs      []TokenBalance
	)
	switch {
	case nativeIn >= domain.MinSwapLamports:
		direction = domain.DirectionBuy
		lamports = nativeIn
		legs = swap.TokenOutputs
	case nativeOut >= domain.MinSwapLamports:
		direction = domain.DirectionSell
		lamports = nativeOut
		legs = swap.TokenInputs
	default:
		return nil, false
	}

	best, ok := p.pickCanonicalLeg(legs)
	if !ok {
		return nil, false
	}

	tokenRaw, ok := new(big.Int).SetString(best.RawTokenAmount.TokenAmount, 10)
	if !ok || tokenRaw.Sign() == 0 {
		return nil, false
	}
	tokenRaw.Abs(tokenRaw)

	return &domain.SwapDescriptor{
		Signature:   raw.Signature,
		Direction:   direction,
		Mint:        best.Mint,
		SolLamports: lamports,
		TokenRaw:    tokenRaw,
		Decimals:    best.RawTokenAmount.Decimals,
		Source:      source,
		DetectedAt:  time.Now(),
	}, true
}

// pickCanonicalLeg filters the wallet's eligible token legs and returns the
// one with the largest absolute raw amount. Ties keep the first-seen leg.
func (p *Parser) pickCanonicalLeg(legs []TokenBalance) (TokenBalance, bool) {
	var (
		best    TokenBalance
		bestAbs *big.Int
	)
	for _, leg := range legs {
		if leg.UserAccount != p.wallet || p.excludedMint(leg.Mint) {
			continue
		}
		amount, ok := new(big.Int).SetString(leg.RawTokenAmount.TokenAmount, 10)
		if !ok {
			continue
		}
		amount.Abs(amount)
		if bestAbs == nil || amount.Cmp(bestAbs) > 0 {
			best = leg
			bestAbs = amount
		}
	}
	return best, bestAbs != nil
}

func (p *Parser) walletNativeAmount(n *NativeAmount) int64 {
	if n == nil || n.Account != p.wallet {
		return 0
	}
	v, err := strconv.ParseInt(n.Amount, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// parseBalanceDeltas fetches the transaction and derives the swap from the
// wallet's pre/post balance tables. This is the authoritative fallback.
func (p *Parser) parseBalanceDeltas(ctx context.Context, signature string, source domain.SourceTag) (*domain.SwapDescriptor, bool) {
	if p.rpc == nil {
		return nil, false
	}

	tx, err := p.rpc.GetParsedTransaction(ctx, signature)
	if err != nil {
		p.log.WithError(err).WithField("signature", signature).Warn("balance-delta lookup failed")
		return nil, false
	}
	if tx == nil || tx.Err != nil {
		return nil, false
	}

	idx := tx.AccountIndexOf(p.wallet)
	if idx < 0 || idx >= len(tx.PreBalances) || idx >= len(tx.PostBalances) {
		return nil, false
	}

	baseDelta := int64(tx.PostBalances[idx]) - int64(tx.PreBalances[idx])
	if idx == 0 {
		// The fee payer's delta includes the tx fee; strip it so pure
		// transfers do not masquerade as swaps.
		baseDelta += int64(tx.Fee)
	}
	if baseDelta > -domain.MinSwapLamports && baseDelta < domain.MinSwapLamports {
		return nil, false
	}

	direction := domain.DirectionBuy
	if baseDelta > 0 {
		direction = domain.DirectionSell
	}

	mint, tokenDelta, decimals, ok := p.largestTokenDelta(tx)
	if !ok {
		return nil, false
	}

	// The token must move opposite the base asset; matching signs mean
	// this was not a swap by the wallet.
	if (direction == domain.DirectionBuy) != (tokenDelta.Sign() > 0) {
		return nil, false
	}

	return &domain.SwapDescriptor{
		Signature:   signature,
		Direction:   direction,
		Mint:        mint,
		SolLamports: abs64(baseDelta),
		TokenRaw:    new(big.Int).Abs(tokenDelta),
		Decimals:    decimals,
		Source:      source,
		DetectedAt:  time.Now(),
	}, true
}

// largestTokenDelta diffs the wallet-owned token balances across the
// transaction, skipping excluded mints, and returns the mint with the
// largest absolute change along with its signed delta.
func (p *Parser) largestTokenDelta(tx *solana.ParsedTransaction) (string, *big.Int, int, bool) {
	type entry struct {
		pre, post *big.Int
		decimals  int
	}
	deltas := make(map[string]*entry)
	order := make([]string, 0, 4)

	track := func(b solana.TokenBalance, post bool) {
		if b.Owner != p.wallet || p.excludedMint(b.Mint) {
			return
		}
		e, ok := deltas[b.Mint]
		if !ok {
			e = &entry{pre: new(big.Int), post: new(big.Int), decimals: b.Decimals}
			deltas[b.Mint] = e
			order = append(order, b.Mint)
		}
		if post {
			e.post.Add(e.post, b.AmountRaw)
		} else {
			e.pre.Add(e.pre, b.AmountRaw)
		}
	}
	for _, b := range tx.PreTokenBalances {
		track(b, false)
	}
	for _, b := range tx.PostTokenBalances {
		track(b, true)
	}

	var (
		bestMint  string
		bestDelta *big.Int
		bestDecs  int
		bestAbs   *big.Int
	)
	for _, mint := range order {
		e := deltas[mint]
		delta := new(big.Int).Sub(e.post, e.pre)
		if delta.Sign() == 0 {
			continue
		}
		a := new(big.Int).Abs(delta)
		if bestAbs == nil || a.Cmp(bestAbs) > 0 {
			bestMint, bestDelta, bestDecs, bestAbs = mint, delta, e.decimals, a
		}
	}
	return bestMint, bestDelta, bestDecs, bestAbs != nil
}

// parseTransferList reconstructs the swap from the flat transfer list. The
// payload only carries UI amounts, so decimals are approximated and the
// descriptor is flagged unsafe.
func (p *Parser) parseTransferList(raw *RawTransaction, source domain.SourceTag) (*domain.SwapDescriptor, bool) {
	if len(raw.TokenTransfers) == 0 {
		return nil, false
	}

	baseDelta := p.nativeDelta(raw)
	if baseDelta > -domain.MinSwapLamports && baseDelta < domain.MinSwapLamports {
		return nil, false
	}
	direction := domain.DirectionBuy
	if baseDelta > 0 {
		direction = domain.DirectionSell
	}

	// Net UI amount per mint over transfers touching the wallet.
	net := make(map[string]float64)
	order := make([]string, 0, 4)
	for _, t := range raw.TokenTransfers {
		if t.Mint == "" || p.excludedMint(t.Mint) {
			continue
		}
		switch p.wallet {
		case t.ToUserAccount:
			if _, seen := net[t.Mint]; !seen {
				order = append(order, t.Mint)
			}
			net[t.Mint] += t.TokenAmount
		case t.FromUserAccount:
			if _, seen := net[t.Mint]; !seen {
				order = append(order, t.Mint)
			}
			net[t.Mint] -= t.TokenAmount
		}
	}

	var (
		bestMint string
		bestNet  float64
		found    bool
	)
	for _, mint := range order {
		v := net[mint]
		if v == 0 {
			continue
		}
		if !found || math.Abs(v) > math.Abs(bestNet) {
			bestMint, bestNet, found = mint, v, true
		}
	}
	if !found {
		return nil, false
	}

	if (direction == domain.DirectionBuy) != (bestNet > 0) {
		return nil, false
	}

	// Rebuild the raw amount at the assumed precision without a float
	// round-trip past the decimal point.
	tokenRaw := decimal.NewFromFloat(math.Abs(bestNet)).Shift(unsafeDecimals).Truncate(0).BigInt()
	if tokenRaw.Sign() == 0 {
		return nil, false
	}

	return &domain.SwapDescriptor{
		Signature:   raw.Signature,
		Direction:   direction,
		Mint:        bestMint,
		SolLamports: abs64(baseDelta),
		TokenRaw:    tokenRaw,
		Decimals:    unsafeDecimals,
		Source:      source,
		UnsafeParse: true,
		DetectedAt:  time.Now(),
	}, true
}

// nativeDelta derives the wallet's net lamport movement from the transfer
// list, falling back to accountData when no native transfers are present.
func (p *Parser) nativeDelta(raw *RawTransaction) int64 {
	var delta int64
	var touched bool
	for _, t := range raw.NativeTransfers {
		if t.ToUserAccount == p.wallet {
			delta += t.Amount
			touched = true
		}
		if t.FromUserAccount == p.wallet {
			delta -= t.Amount
			touched = true
		}
	}
	if touched {
		return delta
	}
	for _, a := range raw.AccountData {
		if a.Account == p.wallet {
			return a.NativeBalanceChange
		}
	}
	return 0
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
