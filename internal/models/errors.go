package ledger

import (
	"errors"
	"net/http"
)

// Code - машиночитаемый код ошибки
type Code string

const (
	CodeOK                       Code = ""
	CodeInvalidRequest           Code = "INVALID_REQUEST"
	CodeInvalidAmount            Code = "INVALID_AMOUNT"
	CodeInvalidCurrency          Code = "INVALID_CURRENCY"
	CodeInsufficientBalance      Code = "INSUFFICIENT_BALANCE"
	CodeInsufficientPoints       Code = "INSUFFICIENT_POINTS"
	CodeNegativeResultingBalance Code = "NEGATIVE_RESULTING_BALANCE"
	CodeAlreadyCheckedIn         Code = "ALREADY_CHECKED_IN"
	CodeDuplicateReferral        Code = "DUPLICATE_REFERRAL"
	CodeReferralCodeNotFound     Code = "REFERRAL_CODE_NOT_FOUND"
	CodeCampaignMismatch         Code = "CAMPAIGN_MISMATCH"
	CodeCampaignInactive         Code = "CAMPAIGN_INACTIVE"
	CodeInviteLimitReached       Code = "INVITE_LIMIT_REACHED"
	CodeRelationNotFound         Code = "RELATION_NOT_FOUND"
	CodeRelationExpired          Code = "RELATION_EXPIRED"
	CodeConcurrencyConflict      Code = "CONCURRENCY_CONFLICT"
	CodeNotFound                 Code = "NOT_FOUND"
	CodeInternal                 Code = "INTERNAL"
)

// HTTPStatus - статус ответа API для кода
func (c Code) HTTPStatus() int {
	switch c {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidRequest, CodeInvalidAmount, CodeInvalidCurrency, CodeCampaignMismatch:
		return http.StatusBadRequest
	case CodeInsufficientBalance, CodeInsufficientPoints:
		return http.StatusPaymentRequired
	case CodeReferralCodeNotFound, CodeRelationNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeNegativeResultingBalance, CodeAlreadyCheckedIn, CodeDuplicateReferral,
		CodeCampaignInactive, CodeInviteLimitReached, CodeRelationExpired, CodeConcurrencyConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error - бизнес-ошибка с кодом
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is сравнивает по коду, чтобы errors.Is работал с обернутыми ошибками
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

var (
	ErrInvalidRequest           = NewError(CodeInvalidRequest, "invalid request")
	ErrInvalidAmount            = NewError(CodeInvalidAmount, "amount must be positive")
	ErrInvalidCurrency          = NewError(CodeInvalidCurrency, "unknown currency")
	ErrInsufficientBalance      = NewError(CodeInsufficientBalance, "insufficient balance")
	ErrInsufficientPoints       = NewError(CodeInsufficientPoints, "insufficient points")
	ErrNegativeResultingBalance = NewError(CodeNegativeResultingBalance, "adjustment would make balance negative")
	ErrAlreadyCheckedIn         = NewError(CodeAlreadyCheckedIn, "already checked in today")
	ErrDuplicateReferral        = NewError(CodeDuplicateReferral, "referral is not allowed")
	ErrReferralCodeNotFound     = NewError(CodeReferralCodeNotFound, "referral code not found")
	ErrCampaignMismatch         = NewError(CodeCampaignMismatch, "task does not match campaign")
	ErrCampaignInactive         = NewError(CodeCampaignInactive, "no active referral campaign")
	ErrInviteLimitReached       = NewError(CodeInviteLimitReached, "invite limit reached")
	ErrRelationNotFound         = NewError(CodeRelationNotFound, "referral relation not found")
	ErrRelationExpired          = NewError(CodeRelationExpired, "referral relation expired")
	ErrConcurrencyConflict      = NewError(CodeConcurrencyConflict, "concurrent update, retry")
	ErrNotFound                 = NewError(CodeNotFound, "not found")
)

// CodeOf - код бизнес-ошибки, для прочих ошибок CodeInternal
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
