package coupons

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DiscountType selects how a coupon's value is applied.
type DiscountType string

const (
	DiscountPercent DiscountType = "PERCENT"
	DiscountFixed   DiscountType = "FIXED"
)

// Coupon describes a discount code. Codes match case-insensitively. Empty
// applicability lists mean the coupon applies everywhere. Zero limits mean
// unlimited.
type Coupon struct {
	Code         string
	Type         DiscountType
	Value        int64 // percent points for PERCENT, amount for FIXED
	MinAmount    int64
	MaxDiscount  int64
	ValidFrom    time.Time
	ValidTo      time.Time
	UsageLimit   int64
	PerUserLimit int64
	DoctorIDs    []string
	ProcedureIDs []string
}

// Validation failure reasons, one per failed check so callers can present an
// actionable message.
var (
	ErrCodeNotFound  = errors.New("coupons: code not found")
	ErrExpired       = errors.New("coupons: code expired")
	ErrBelowMinimum  = errors.New("coupons: amount below minimum")
	ErrNotApplicable = errors.New("coupons: not applicable")
	ErrUsageExceeded = errors.New("coupons: usage limit exceeded")
)

// Reason maps a coupon error to its wire code, or "" for non-coupon errors.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrCodeNotFound):
		return "CODE_NOT_FOUND"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	case errors.Is(err, ErrBelowMinimum):
		return "BELOW_MINIMUM"
	case errors.Is(err, ErrNotApplicable):
		return "NOT_APPLICABLE"
	case errors.Is(err, ErrUsageExceeded):
		return "USAGE_EXCEEDED"
	}
	return ""
}

// Repository resolves coupons by code.
type Repository interface {
	Get(ctx context.Context, code string) (*Coupon, error)
}

// MemoryRepository is an in-memory coupon catalog keyed case-insensitively.
type MemoryRepository struct {
	coupons map[string]*Coupon
}

// NewMemoryRepository creates a repository holding the given coupons.
func NewMemoryRepository(coupons ...*Coupon) *MemoryRepository {
	r := &MemoryRepository{coupons: make(map[string]*Coupon, len(coupons))}
	for _, c := range coupons {
		r.coupons[strings.ToUpper(c.Code)] = c
	}
	return r
}

// Get returns the coupon for the code or ErrCodeNotFound.
func (r *MemoryRepository) Get(_ context.Context, code string) (*Coupon, error) {
	c, ok := r.coupons[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, ErrCodeNotFound
	}
	return c, nil
}
