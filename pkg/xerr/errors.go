package xerr

import (
	"errors"
	"fmt"
)

// Error codes returned to a trader.
const (
	OK                 = 200
	BadRequest         = 400
	UnknownInstrument  = 404
	InsufficientFunds  = 402
	InsufficientShares = 409
	EngineBusy         = 503
	Internal           = 500
)

type CodeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func Newf(code int, format string, args ...any) error {
	return &CodeError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

func MapErrMsg(code int) string {
	switch code {
	case BadRequest:
		return "invalid action"
	case UnknownInstrument:
		return "unknown ticker"
	case InsufficientFunds:
		return "not enough cash"
	case InsufficientShares:
		return "not enough shares"
	case EngineBusy:
		return "exchange busy, try again"
	case Internal:
		return "internal error"
	default:
		return "unknown error"
	}
}

// CodeOf returns the code of the first CodeError in err's chain, Internal
// for any other non-nil error and OK for nil.
func CodeOf(err error) int {
	if err == nil {
		return OK
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return Internal
}

// MsgOf is the trader-facing text of err.
func MsgOf(err error) string {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Msg
	}
	return MapErrMsg(CodeOf(err))
}
