package feed_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/partnerfeeds/feedsync/internal/feed"
)

func TestAvailabilityForQuantity(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		qty int

		want string
	}{
		"Zero stock is on order":      {qty: 0, want: feed.AvailabilityOnOrder},
		"One unit is limited":         {qty: 1, want: feed.AvailabilityLimited},
		"Just below the threshold":    {qty: 11, want: feed.AvailabilityLimited},
		"At the threshold":            {qty: 12, want: feed.AvailabilityAvailable},
		"Plenty of stock":             {qty: 100, want: feed.AvailabilityAvailable},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := feed.AvailabilityForQuantity(tc.qty)
			require.Equal(t, tc.want, got, "AvailabilityForQuantity should band the quantity")
		})
	}
}
