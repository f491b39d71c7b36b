package archive

import "time"

// MessageRecord is one archival row: an inbound or outbound message as it
// will be inserted into signal_messages. See spec §3.
type MessageRecord struct {
	Timestamp                time.Time
	SignalReceivedTimestamp  time.Time
	SignalDeliveredTimestamp *time.Time
	Target                   string
	Source                   string
	GroupChat                *string
	Mentions                 *string
	Content                  *string
	CreatedAt                time.Time
}
