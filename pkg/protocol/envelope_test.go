package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		msgType string
		payload any
		wantLen bool
	}{
		{name: "announce", msgType: TypeAnnounce, payload: Announce{PeerID: "peer-x"}, wantLen: true},
		{name: "signal", msgType: TypeSignal, payload: Signal{Kind: SignalOffer, Data: "v=0"}, wantLen: true},
		{name: "nil payload", msgType: TypeQueryPeerID, payload: nil, wantLen: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := NewEnvelope(tt.msgType, "msg1", tt.payload)
			if err != nil {
				t.Fatalf("NewEnvelope() error = %v", err)
			}
			if env.V != ProtocolVersion {
				t.Errorf("V = %d, want %d", env.V, ProtocolVersion)
			}
			if env.Type != tt.msgType {
				t.Errorf("Type = %s, want %s", env.Type, tt.msgType)
			}
			if (len(env.Payload) > 0) != tt.wantLen {
				t.Errorf("payload present = %v, want %v", len(env.Payload) > 0, tt.wantLen)
			}
			if err := env.ValidateBasic(); err != nil {
				t.Errorf("ValidateBasic() error = %v", err)
			}
		})
	}
}

func TestNewEnvelope_UnmarshalablePayload(t *testing.T) {
	if _, err := NewEnvelope(TypeSignal, "msg1", make(chan int)); err == nil {
		t.Fatal("expected marshal error for channel payload")
	}
}

func TestNewReply(t *testing.T) {
	req := Envelope{V: ProtocolVersion, Type: TypeQueryPeerID, MsgID: "req-1", From: "peer-x"}

	reply, err := NewReply(req, TypePeerIDResult, PeerIDResult{PeerID: "peer-x", Found: true})
	if err != nil {
		t.Fatalf("NewReply() error = %v", err)
	}
	if reply.MsgID != "req-1" {
		t.Errorf("MsgID = %s, want req-1", reply.MsgID)
	}
	if reply.To != "peer-x" {
		t.Errorf("To = %s, want peer-x", reply.To)
	}

	var result PeerIDResult
	if err := reply.DecodePayload(&result); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if !result.Found || result.PeerID != "peer-x" {
		t.Errorf("result = %+v, want found peer-x", result)
	}
}

func TestEnvelope_JSONRoundTrip(t *testing.T) {
	original, err := NewEnvelope(TypeSignal, NewMsgID(), Signal{Kind: SignalAnswer, Data: "sdp"})
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	original.From = "peer-a"
	original.To = "peer-b"

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if err := decoded.ValidateBasic(); err != nil {
		t.Fatalf("ValidateBasic() error = %v", err)
	}
	if decoded.From != "peer-a" || decoded.To != "peer-b" {
		t.Errorf("From/To = %s/%s, want peer-a/peer-b", decoded.From, decoded.To)
	}

	var sig Signal
	if err := decoded.DecodePayload(&sig); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if sig.Kind != SignalAnswer || sig.Data != "sdp" {
		t.Errorf("signal = %+v, want answer/sdp", sig)
	}
}

func TestEnvelope_UnknownFieldsIgnored(t *testing.T) {
	jsonData := `{
		"v": 1,
		"type": "peer-id",
		"msg_id": "test123",
		"session_id": "ignored",
		"payload": {"peer_id":"peer1"}
	}`

	var env Envelope
	if err := json.Unmarshal([]byte(jsonData), &env); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if err := env.ValidateBasic(); err != nil {
		t.Fatalf("ValidateBasic() error = %v", err)
	}

	var announce Announce
	if err := env.DecodePayload(&announce); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if announce.PeerID != "peer1" {
		t.Errorf("PeerID = %s, want peer1", announce.PeerID)
	}
}

func TestEnvelope_ValidateBasic(t *testing.T) {
	tests := []struct {
		name   string
		env    Envelope
		errMsg string
	}{
		{name: "valid", env: Envelope{V: ProtocolVersion, Type: TypeAnnounce, MsgID: "m"}},
		{name: "wrong version", env: Envelope{V: 999, Type: TypeAnnounce, MsgID: "m"}, errMsg: "invalid protocol version"},
		{name: "missing type", env: Envelope{V: ProtocolVersion, MsgID: "m"}, errMsg: "type is required"},
		{name: "missing msg_id", env: Envelope{V: ProtocolVersion, Type: TypeAnnounce}, errMsg: "msg_id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.ValidateBasic()
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("ValidateBasic() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("ValidateBasic() error = %v, want %q", err, tt.errMsg)
			}
		})
	}
}

func TestDecodePayload_Empty(t *testing.T) {
	env := Envelope{V: ProtocolVersion, Type: TypeQueryPeerID, MsgID: "m"}
	var out QueryPeerID
	if err := env.DecodePayload(&out); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestNewMsgID(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewMsgID()
		if id == "" {
			t.Fatal("NewMsgID() returned empty id")
		}
		if ids[id] {
			t.Errorf("NewMsgID() generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}
