// Package middleware 提供了 HTTP 請求處理的中間件。
//
// MemberAuth 驗證聊天室連線取得的成員 token，RequestLogger 以 zerolog 記錄請求。
package middleware
