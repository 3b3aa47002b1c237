package rpc

import (
	"encoding/json"

	"paygate/internal/merchant"
)

// Request is the inbound RPC envelope. The id is echoed back verbatim.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Response is the outbound RPC envelope: exactly one of Result or Error
// is set.
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody carries a protocol error code and its static message.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func errorBody(err error) *ErrorBody {
	perr := merchant.AsProtocolError(err)
	return &ErrorBody{Code: perr.Code, Message: perr.Message}
}

type checkPerformParams struct {
	Amount  int64            `json:"amount"`
	Account merchant.Account `json:"account"`
}

type createParams struct {
	ID      string           `json:"id"`
	Time    int64            `json:"time"`
	Amount  int64            `json:"amount"`
	Account merchant.Account `json:"account"`
}

type transactionParams struct {
	ID string `json:"id"`
}

type cancelParams struct {
	ID     string `json:"id"`
	Reason int    `json:"reason"`
}

type statementParams struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}
