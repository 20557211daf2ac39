package event

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// NewFrame はペイロードをJSONにシリアライズしてフレームを生成する。
func NewFrame(t Type, data any) (*Frame, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("フレームデータのシリアライズに失敗: %w", err)
	}
	return &Frame{Type: t, Data: jsonData}, nil
}

// DecodeData はフレームのDataフィールドを指定された型にデシリアライズする。
func DecodeData[T any](f *Frame) (*T, error) {
	var data T
	if err := json.Unmarshal(f.Data, &data); err != nil {
		return nil, fmt.Errorf("フレームデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}

// Encode はフレームを "event: <type>\ndata: <json>\n\n" 形式でwに書き込む。
// JSONは改行を含まないため、data行は常に1行になる。
func Encode(w io.Writer, f *Frame) error {
	var buf bytes.Buffer
	buf.Grow(len(f.Type) + len(f.Data) + 16)
	buf.WriteString("event: ")
	buf.WriteString(string(f.Type))
	buf.WriteString("\ndata: ")
	buf.Write(f.Data)
	buf.WriteString("\n\n")
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("フレームの書き込みに失敗: %w", err)
	}
	return nil
}

// Decoder はイベントストリームからフレームを順に読み出す。
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder はrから読み出すDecoderを生成する。
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next は次のフレームを返す。ストリームが終端に達した場合はio.EOFを返す。
// コメント行（":"で始まる行）とid/retryフィールドは読み飛ばす。
// 複数のdata行は改行で連結する。
func (d *Decoder) Next() (*Frame, error) {
	var (
		name string
		data []string
	)
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && line == "" {
				if name != "" || len(data) > 0 {
					return nil, io.ErrUnexpectedEOF
				}
				return nil, io.EOF
			}
			if !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("ストリームの読み込みに失敗: %w", err)
			}
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if name == "" && len(data) == 0 {
				continue
			}
			if name == "" {
				// 名前のないイベントはSSEの既定である"message"として扱う
				name = "message"
			}
			return &Frame{Type: Type(name), Data: json.RawMessage(strings.Join(data, "\n"))}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		}
	}
}
