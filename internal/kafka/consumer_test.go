package kafka

import (
	"errors"
	"testing"
	"time"

	"github.com/jmehdipour/xl-gateway/internal/model"
)

func TestEventRoundTripKeyedByCaller(t *testing.T) {
	in := model.PurchaseEvent{ID: "01J0000000000000000000000A", Caller: "fp-1", Rail: model.RailQris, Operation: "show_qris"}
	m, err := EncodeEvent(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(m.Key) != "fp-1" {
		t.Fatalf("expected the caller fingerprint as key, got %q", m.Key)
	}

	out, err := DecodeEvent(m)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != in.ID || out.Caller != in.Caller || out.Rail != in.Rail || out.Operation != in.Operation {
		t.Fatalf("unexpected event %+v", out)
	}
}

func TestDecodeEventRejectsPoison(t *testing.T) {
	if _, err := DecodeEvent(Message{Offset: 7, Value: []byte("{not json")}); err == nil {
		t.Fatalf("expected a decode error")
	}
	if _, err := DecodeEvent(Message{Offset: 8, Value: []byte(`{"caller":"fp"}`)}); !errors.Is(err, ErrNoEventID) {
		t.Fatalf("expected ErrNoEventID, got %v", err)
	}
}

func TestReaderConfigDefaults(t *testing.T) {
	rc := Config{Brokers: []string{"b:9092"}, Topic: "audit", GroupID: "g"}.reader()
	if rc.MinBytes != 1<<10 || rc.MaxBytes != 10<<20 {
		t.Fatalf("unexpected byte limits %d/%d", rc.MinBytes, rc.MaxBytes)
	}
	if rc.CommitInterval != time.Second || rc.MaxWait != 250*time.Millisecond {
		t.Fatalf("unexpected intervals %v/%v", rc.CommitInterval, rc.MaxWait)
	}

	rc = Config{Topic: "audit", GroupID: "g", MaxWait: time.Second}.reader()
	if rc.MaxWait != time.Second || rc.Topic != "audit" || rc.GroupID != "g" {
		t.Fatalf("expected explicit values kept, got %+v", rc)
	}
}
