package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// ErrUnavailable означает, что узел реестра недоступен или вернул
// ошибку транспортного уровня. Это временное состояние: вызывающая
// сторона может повторить запрос позже.
var ErrUnavailable = errors.New("ledger rpc unavailable")

// Client тонкий клиент read API реестра. Не интерпретирует доменные
// ошибки транзакций и не выполняет повторов; бюджет исходящих вызовов
// ограничивается внедренным rate-лимитером.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient создаёт новый клиент узла реестра.
func NewClient(endpoint string, httpClient *http.Client, limiter *rate.Limiter) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		limiter:    limiter,
	}
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	const op = "ledger.call"

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var buf bytes.Buffer
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %w: unexpected status %s", op, ErrUnavailable, resp.Status)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %w: rpc error %d: %s", op, ErrUnavailable, rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// GetTransaction возвращает транзакцию по сигнатуре. Возвращает (nil, nil),
// если реестр не знает такой сигнатуры: неподтвержденная транзакция —
// нормальное состояние, а не ошибка.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*TxInfo, error) {
	const op = "ledger.GetTransaction"

	params := []any{
		signature,
		map[string]any{
			"encoding":                       "json",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result *TxInfo
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// GetSignaturesForAddress возвращает историю сигнатур адреса, новые первыми.
func (c *Client) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	const op = "ledger.GetSignaturesForAddress"

	params := []any{
		address,
		map[string]any{
			"limit":      limit,
			"commitment": "confirmed",
		},
	}

	var result []SignatureInfo
	if err := c.call(ctx, "getSignaturesForAddress", params, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
