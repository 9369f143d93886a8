// Package ledger реализует тонкий read-клиент JSON-RPC API распределенного реестра.
package ledger

import "encoding/json"

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// UITokenAmount сумма токенового баланса: Amount — целое число
// микроединиц в виде строки, Decimals — точность токена.
type UITokenAmount struct {
	Amount   string `json:"amount"`
	Decimals int    `json:"decimals"`
}

// TokenBalance снимок баланса токенового аккаунта до или после транзакции.
type TokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

// TxMeta метаданные исполнения транзакции. Err не nil, если реестр
// сообщил об ошибке исполнения.
type TxMeta struct {
	Err               any            `json:"err"`
	PreTokenBalances  []TokenBalance `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance `json:"postTokenBalances"`
}

// TxInfo транзакция, полученная из реестра по сигнатуре.
type TxInfo struct {
	Slot      uint64  `json:"slot"`
	BlockTime *int64  `json:"blockTime"`
	Meta      *TxMeta `json:"meta"`
}

// SignatureInfo элемент истории сигнатур адреса, новые первыми.
type SignatureInfo struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Err       any    `json:"err"`
}
