// Package ledger é o cliente HTTP do ledger-service usado para debitar apostas.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/objective-bet-platform/internal/shared/auth"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUserNotFound      = errors.New("ledger user not found")
	ErrAlreadyProcessed  = errors.New("ledger ref already processed")
)

// códigos de erro devolvidos pelo ledger no corpo das respostas 4xx
const (
	codeInsufficientFunds = "insufficient_funds"
	codeAlreadyProcessed  = "already_processed"
	codeUserNotFound      = "user_not_found"
)

type movementRequest struct {
	UserID      string           `json:"userId"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	ExternalRef string           `json:"externalRef"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Balance é a resposta do ledger após a movimentação
type Balance struct {
	UserID   string          `json:"userId"`
	Balance  decimal.Decimal `json:"balance"`
	Replayed bool            `json:"replayed"`
}

type Client struct {
	BaseURL string
	Token   string // enviado em X-Internal-Token
	HTTP    *http.Client
}

func New(base, token string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: base,
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Debit retira amount do saldo; externalRef torna a chamada idempotente
func (c *Client) Debit(ctx context.Context, userID string, amount decimal.Decimal, externalRef string) (Balance, error) {
	return c.post(ctx, "/ledger/debit", movementRequest{UserID: userID, Amount: &amount, ExternalRef: externalRef})
}

// Credit devolve amount ao saldo (ex.: prêmio de aposta vencedora)
func (c *Client) Credit(ctx context.Context, userID string, amount decimal.Decimal, externalRef string) (Balance, error) {
	return c.post(ctx, "/ledger/credit", movementRequest{UserID: userID, Amount: &amount, ExternalRef: externalRef})
}

// Void desfaz o débito de externalRef se ele foi aplicado e, se não foi,
// impede que um débito atrasado com a mesma referência seja aplicado depois
func (c *Client) Void(ctx context.Context, userID, externalRef string) (Balance, error) {
	return c.post(ctx, "/ledger/void", movementRequest{UserID: userID, ExternalRef: externalRef})
}

func (c *Client) post(ctx context.Context, path string, in movementRequest) (Balance, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return Balance{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return Balance{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderInternalToken, c.Token)
	res, err := c.HTTP.Do(req)
	if err != nil {
		return Balance{}, fmt.Errorf("ledger %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return Balance{}, statusError(path, res)
	}
	var out Balance
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Balance{}, err
	}
	return out, nil
}

// statusError usa o código do corpo; 409/404 sem código seguem o significado do status
func statusError(path string, res *http.Response) error {
	var e errorBody
	_ = json.NewDecoder(io.LimitReader(res.Body, 4<<10)).Decode(&e)

	switch e.Code {
	case codeInsufficientFunds:
		return ErrInsufficientFunds
	case codeAlreadyProcessed:
		return ErrAlreadyProcessed
	case codeUserNotFound:
		return ErrUserNotFound
	}
	switch res.StatusCode {
	case http.StatusConflict:
		return ErrInsufficientFunds
	case http.StatusNotFound:
		return ErrUserNotFound
	}
	return fmt.Errorf("ledger %s http %d: %s", path, res.StatusCode, e.Error)
}
