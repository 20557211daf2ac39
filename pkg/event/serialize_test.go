package event

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

// TestEncode はフレームがSSE形式で書き込まれることを検証する。
func TestEncode(t *testing.T) {
	t.Parallel()

	t.Run("event行とdata行の後に空行が続くこと", func(t *testing.T) {
		t.Parallel()

		f, err := NewFrame(TypeHeartbeat, HeartbeatData{Timestamp: 1700000000})
		if err != nil {
			t.Fatalf("NewFrame()でエラーが発生: %v", err)
		}

		var buf bytes.Buffer
		if err := Encode(&buf, f); err != nil {
			t.Fatalf("Encode()でエラーが発生: %v", err)
		}

		want := "event: heartbeat\ndata: {\"timestamp\":1700000000}\n\n"
		if got := buf.String(); got != want {
			t.Errorf("Encode() = %q, want %q", got, want)
		}
	})

	t.Run("通知フィードのペイロードが仕様どおりのキーを持つこと", func(t *testing.T) {
		t.Parallel()

		f, err := NewFrame(TypeNotifications, NotificationsData{
			Notifications: []Notification{{
				ID:        "welcome",
				Title:     "ようこそ",
				Message:   "はじめまして",
				Type:      "success",
				Priority:  "low",
				Timestamp: 10,
			}},
			UnreadCount: 1,
			Timestamp:   20,
		})
		if err != nil {
			t.Fatalf("NewFrame()でエラーが発生: %v", err)
		}

		for _, key := range []string{`"id":"welcome"`, `"type":"success"`, `"priority":"low"`, `"read":false`, `"unread_count":1`} {
			if !strings.Contains(string(f.Data), key) {
				t.Errorf("Dataに %s が含まれていない: %s", key, f.Data)
			}
		}
	})
}

// TestDecoder はDecoderがエンコード済みフレームを復元できることを検証する。
func TestDecoder(t *testing.T) {
	t.Parallel()

	t.Run("連続したフレームを順に読み出せること", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		connected, _ := NewFrame(TypeConnected, ConnectedData{Message: "ok", UserID: "user-1"})
		count, _ := NewFrame(TypeCountUpdate, CountUpdateData{UnreadCount: 3, Timestamp: 5})
		if err := Encode(&buf, connected); err != nil {
			t.Fatal(err)
		}
		if err := Encode(&buf, count); err != nil {
			t.Fatal(err)
		}

		dec := NewDecoder(&buf)

		f, err := dec.Next()
		if err != nil {
			t.Fatalf("Next()でエラーが発生: %v", err)
		}
		if f.Type != TypeConnected {
			t.Errorf("Type = %q, want %q", f.Type, TypeConnected)
		}
		data, err := DecodeData[ConnectedData](f)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if data.UserID != "user-1" {
			t.Errorf("UserID = %q, want %q", data.UserID, "user-1")
		}

		f, err = dec.Next()
		if err != nil {
			t.Fatalf("Next()でエラーが発生: %v", err)
		}
		cd, err := DecodeData[CountUpdateData](f)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if cd.UnreadCount != 3 {
			t.Errorf("UnreadCount = %d, want 3", cd.UnreadCount)
		}

		if _, err := dec.Next(); !errors.Is(err, io.EOF) {
			t.Errorf("終端でio.EOFが返らない: %v", err)
		}
	})

	t.Run("コロン直後の空白がないフレームとコメント行を扱えること", func(t *testing.T) {
		t.Parallel()

		stream := ": keepalive\n\nevent:heartbeat\r\ndata:{\"timestamp\":1}\r\n\r\n"
		dec := NewDecoder(strings.NewReader(stream))

		f, err := dec.Next()
		if err != nil {
			t.Fatalf("Next()でエラーが発生: %v", err)
		}
		if f.Type != TypeHeartbeat {
			t.Errorf("Type = %q, want %q", f.Type, TypeHeartbeat)
		}
		if string(f.Data) != `{"timestamp":1}` {
			t.Errorf("Data = %s", f.Data)
		}
	})

	t.Run("途中で切れたフレームはErrUnexpectedEOFになること", func(t *testing.T) {
		t.Parallel()

		dec := NewDecoder(strings.NewReader("event: heartbeat\ndata: {}"))
		if _, err := dec.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("err = %v, want io.ErrUnexpectedEOF", err)
		}
	})
}

// TestTypeKnown はフレーム種別の判定を検証する。
func TestTypeKnown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		typ  Type
		want bool
	}{
		{name: "heartbeatは既知", typ: TypeHeartbeat, want: true},
		{name: "equipment_updateは既知", typ: TypeEquipmentUpdate, want: true},
		{name: "messageは未知", typ: Type("message"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.typ.Known(); got != tt.want {
				t.Errorf("Known() = %v, want %v", got, tt.want)
			}
		})
	}
}
