package wire

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/HyperbaseApp/hyperbase/pkg/gossip/peer"
	"github.com/HyperbaseApp/hyperbase/pkg/store"
)

func TestMessageRoundTrip(t *testing.T) {
	id := uuid.New()
	changeID, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("uuid.NewV7: %v", err)
	}
	now := time.Now().Truncate(time.Millisecond)

	cases := []struct {
		name string
		msg  Message
	}{
		{
			name: "sampling",
			msg: Message{
				Sender: "10.0.0.1:9000",
				Sampling: &SamplingMessage{
					Kind:  SamplingRequest,
					Peers: []peer.Peer{peer.New(&id, "10.0.0.2:9000"), peer.New(nil, "10.0.0.3:9000")},
				},
			},
		},
		{
			name: "header_request",
			msg: Message{
				Sender:        "10.0.0.1:9000",
				HeaderRequest: &HeaderRequest{FromTime: now, FromChangeID: changeID, Limit: 50},
			},
		},
		{
			name: "header_response",
			msg: Message{
				Sender: "10.0.0.1:9000",
				HeaderResponse: &HeaderResponse{
					Rows: []store.ChangeLog{
						store.NewChangeLog(store.NewTable(store.TableProject), id, store.ChangeInsert, now),
					},
				},
			},
		},
		{
			name: "content_request",
			msg: Message{
				Sender:         "10.0.0.1:9000",
				ContentRequest: &ContentRequest{ChangeIDs: []uuid.UUID{changeID}},
			},
		},
		{
			name: "content_response",
			msg: Message{
				Sender: "10.0.0.1:9000",
				ContentResponse: &ContentResponse{
					Changes: []store.ContentChange{
						{Table: store.NewTable(store.TableAdmin), ID: id, State: store.ChangeUpsert, Timestamp: now, ChangeID: changeID, Body: []byte("payload")},
					},
				},
			},
		},
		{
			name: "content_broadcast",
			msg: Message{
				Sender: "10.0.0.1:9000",
				ContentBroadcast: &ContentBroadcast{
					Change: store.ContentChange{Table: store.NewRecordTable(id), ID: id, State: store.ChangeDelete, Timestamp: now, ChangeID: changeID},
				},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteFrame(&buf, tc.msg); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}
			got, err := ReadFrame(&buf)
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if got.Variant() != tc.msg.Variant() {
				t.Fatalf("Variant() = %q, want %q", got.Variant(), tc.msg.Variant())
			}
			if got.Sender != tc.msg.Sender {
				t.Fatalf("Sender = %q, want %q", got.Sender, tc.msg.Sender)
			}
		})
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	var length [4]byte
	length[0] = 0x7f // huge declared length, no body to match
	buf.Write(length[:])

	if _, err := ReadFrame(&buf); err == nil {
		t.Fatal("ReadFrame: expected error for oversized frame length, got nil")
	}
}
