// Package api 處理 HTTP 請求路由和處理。
//
// 這個包將 REST 讀取介面、投票 API 與 /ws 即時通道註冊到 gin 路由器，
// handlers 子包負責把 HTTP 請求轉換為 service 層的呼叫。
package api
