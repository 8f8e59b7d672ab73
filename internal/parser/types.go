package parser

// RawTransaction is the enriched transaction record accepted by the webhook
// and reconstructed by the other ingestion sources. Only the fields the
// parser reads are modelled; unknown fields are ignored on decode.
type RawTransaction struct {
	Signature        string           `json:"signature"`
	FeePayer         string           `json:"feePayer"`
	Timestamp        int64            `json:"timestamp"`
	Type             string           `json:"type"`
	Description      string           `json:"description"`
	TransactionError interface{}      `json:"transactionError"`
	Events           Events           `json:"events"`
	TokenTransfers   []TokenTransfer  `json:"tokenTransfers"`
	NativeTransfers  []NativeTransfer `json:"nativeTransfers"`
	AccountData      []AccountData    `json:"accountData"`
}

// Events holds the structured event section of an enriched transaction.
type Events struct {
	Swap *SwapEvent `json:"swap"`
}

// SwapEvent is the aggregator-decoded swap summary.
type SwapEvent struct {
	NativeInput  *NativeAmount  `json:"nativeInput"`
	NativeOutput *NativeAmount  `json:"nativeOutput"`
	TokenInputs  []TokenBalance `json:"tokenInputs"`
	TokenOutputs []TokenBalance `json:"tokenOutputs"`
}

// NativeAmount is a base-asset leg of a swap event. Amount is lamports as a
// decimal string.
type NativeAmount struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// TokenBalance is a token leg of a swap event, with exact raw amounts.
type TokenBalance struct {
	Mint           string         `json:"mint"`
	UserAccount    string         `json:"userAccount"`
	TokenAccount   string         `json:"tokenAccount"`
	RawTokenAmount RawTokenAmount `json:"rawTokenAmount"`
}

// RawTokenAmount carries a raw integer amount as a string plus decimals.
type RawTokenAmount struct {
	TokenAmount string `json:"tokenAmount"`
	Decimals    int    `json:"decimals"`
}

// TokenTransfer is one entry of the flat transfer list. TokenAmount is a
// UI amount; decimals are not included, which is why descriptors built from
// this path carry the unsafe-parse flag.
type TokenTransfer struct {
	Mint            string  `json:"mint"`
	FromUserAccount string  `json:"fromUserAccount"`
	ToUserAccount   string  `json:"toUserAccount"`
	TokenAmount     float64 `json:"tokenAmount"`
}

// NativeTransfer is one base-asset transfer in lamports.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

// AccountData carries per-account balance changes.
type AccountData struct {
	Account             string `json:"account"`
	NativeBalanceChange int64  `json:"nativeBalanceChange"`
}
