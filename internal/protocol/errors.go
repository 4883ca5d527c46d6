package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrTransport           = errors.New("protocol: transport failure")
	ErrProtocolMismatch    = errors.New("protocol: unexpected janus tag")
	ErrTransactionMismatch = errors.New("protocol: transaction mismatch")
	ErrMalformedEnvelope   = errors.New("protocol: malformed envelope")
)

// TransportError reports a non-2xx HTTP status or a connection-level failure.
// Exactly one of Status and Cause is meaningful.
type TransportError struct {
	Status int
	Cause  error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("protocol: transport failure: http status %d", e.Status)
	}
	return fmt.Sprintf("protocol: transport failure: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// TagMismatchError reports a synchronous response whose janus tag did not
// match the expected success tag. Gateway-reported failures surface here with
// the gateway's tag and error object preserved for diagnostics.
type TagMismatchError struct {
	Want    string
	Got     string
	Gateway *GatewayError
}

func (e *TagMismatchError) Error() string {
	if e.Gateway != nil {
		return fmt.Sprintf("protocol: unexpected janus tag %q (want %q): gateway code=%d reason=%q",
			e.Got, e.Want, e.Gateway.Code, e.Gateway.Reason)
	}
	return fmt.Sprintf("protocol: unexpected janus tag %q (want %q)", e.Got, e.Want)
}

func (e *TagMismatchError) Is(target error) bool { return target == ErrProtocolMismatch }

// TxnMismatchError reports a synchronous response correlated to a different
// transaction than the one sent. A correct transport never produces this.
type TxnMismatchError struct {
	Sent string
	Got  string
}

func (e *TxnMismatchError) Error() string {
	return fmt.Sprintf("protocol: transaction mismatch: sent %q got %q", e.Sent, e.Got)
}

func (e *TxnMismatchError) Is(target error) bool { return target == ErrTransactionMismatch }
