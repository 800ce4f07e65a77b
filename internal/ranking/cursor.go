// Package ranking はテイク一覧の並び替えとページネーションを提供する。
package ranking

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/hottakes/internal/model"
)

// Cursor は新着順ページネーションの位置（最後に返したテイク）を表す。
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

type cursorPayload struct {
	CreatedAt string `json:"created_at"`
	ID        string `json:"id"`
}

// naiveTimestampLayout はタイムゾーンなしのタイムスタンプ。UTCとして扱う。
const naiveTimestampLayout = "2006-01-02T15:04:05.999999999"

// EncodeCursor はカーソルをURLセーフなbase64文字列にする。
func EncodeCursor(c Cursor) string {
	b, _ := json.Marshal(cursorPayload{
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
		ID:        c.ID,
	})
	return base64.URLEncoding.EncodeToString(b)
}

// DecodeCursor はEncodeCursorの出力を復元する。
// 不正なトークンはINVALID_CURSORのAPIErrorを返す。
func DecodeCursor(token string) (Cursor, error) {
	raw, err := decodeBase64(token)
	if err != nil {
		return Cursor{}, model.NewInvalidCursorError("base64としてデコードできません")
	}

	var p cursorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Cursor{}, model.NewInvalidCursorError("JSONとして解釈できません")
	}
	if p.CreatedAt == "" || p.ID == "" {
		return Cursor{}, model.NewInvalidCursorError("created_atまたはidがありません")
	}

	createdAt, err := parseTimestamp(p.CreatedAt)
	if err != nil {
		return Cursor{}, model.NewInvalidCursorError("created_atの形式が不正です")
	}

	return Cursor{CreatedAt: createdAt, ID: p.ID}, nil
}

// decodeBase64 はパディングの有無どちらのURLセーフbase64も受け付ける。
func decodeBase64(token string) ([]byte, error) {
	if strings.HasSuffix(token, "=") {
		return base64.URLEncoding.DecodeString(token)
	}
	return base64.RawURLEncoding.DecodeString(token)
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, ok := parseOutOfRangeYear(s); ok {
		return t, nil
	}
	return time.ParseInLocation(naiveTimestampLayout, s, time.UTC)
}

// parseOutOfRangeYear はtime.Formatが4桁に収まらない年（負または10000以上）で
// 出力したRFC3339タイムスタンプを解釈する。
// 暦は400年周期で一致するため、年を同じ周期上の4桁の年に置き換えて解釈し、差分を足し戻す。
func parseOutOfRangeYear(s string) (time.Time, bool) {
	sep := strings.IndexByte(s[min(1, len(s)):], '-') + 1
	if sep <= 0 {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(s[:sep])
	if err != nil || (year >= 0 && year <= 9999) {
		return time.Time{}, false
	}

	base := 2000 + ((year%400)+400)%400
	t, err := time.Parse(time.RFC3339Nano, strconv.Itoa(base)+s[sep:])
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC().AddDate(year-base, 0, 0), true
}
