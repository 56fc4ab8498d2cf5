package auctionerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "wrapped validation", err: fmt.Errorf("place bid: %w", ErrBidTooLow), want: KindValidation},
		{name: "bid too high", err: fmt.Errorf("record: %w", ErrBidTooHigh), want: KindValidation},
		{name: "buy now closed", err: ErrBuyNowClosed, want: KindConflict},
		{name: "not found", err: ErrListingNotFound, want: KindNotFound},
		{name: "forbidden", err: ErrSellerCannotBid, want: KindForbidden},
		{name: "conflict", err: fmt.Errorf("buy now: %w", ErrListingNotActive), want: KindConflict},
		{name: "busy", err: fmt.Errorf("lock listing 7: %w", ErrBusy), want: KindRetryable},
		{name: "unknown", err: errors.New("boom"), want: KindInternal},
		{name: "nil", err: nil, want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("x: %w", ErrBusy)))
	assert.False(t, IsRetryable(ErrAuctionExpired))
}
