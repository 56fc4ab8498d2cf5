package model

import (
	"time"

	"github.com/mmeshcher/auctionhouse/internal/money"
)

// EventType задаёт тип уведомления для подсистемы оповещений.
type EventType string

const (
	EventOutbid     EventType = "OUTBID"
	EventNowLeading EventType = "NOW_LEADING"
	EventAuctionWon EventType = "WON"
	EventEndingSoon EventType = "ENDING_SOON"
)

// Event адресовано одному пользователю UserID.
type Event struct {
	Type       EventType    `json:"type"`
	ListingID  int64        `json:"listing_id"`
	UserID     int64        `json:"user_id"`
	FinalPrice *money.Money `json:"final_price,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// OutbidEvent сообщает прежнему лидеру, что его перебили.
func OutbidEvent(listingID, previousLeaderID int64, at time.Time) Event {
	return Event{Type: EventOutbid, ListingID: listingID, UserID: previousLeaderID, OccurredAt: at}
}

func NowLeadingEvent(listingID, leaderID int64, at time.Time) Event {
	return Event{Type: EventNowLeading, ListingID: listingID, UserID: leaderID, OccurredAt: at}
}

// AuctionWonEvent сообщает победителю итоговую цену.
func AuctionWonEvent(listingID, winnerID int64, finalPrice money.Money, at time.Time) Event {
	return Event{Type: EventAuctionWon, ListingID: listingID, UserID: winnerID, FinalPrice: &finalPrice, OccurredAt: at}
}

func EndingSoonEvent(listingID, userID int64, at time.Time) Event {
	return Event{Type: EventEndingSoon, ListingID: listingID, UserID: userID, OccurredAt: at}
}
