package model

import "time"

// User はサービス利用ユーザーを表す。
// 登録・ログイン・OAuth連携は外部の認証サービスが担い、ここでは参照のみ行う。
type User struct {
	ID        string
	Email     string
	Username  string
	CreatedAt time.Time
}

// Session はセッショントークンから復元したログイン情報を表す。
type Session struct {
	UserID    string
	ExpiresAt time.Time
}
