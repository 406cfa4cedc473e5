package svc

import "SocialSync/model"

// 上行帧类型
const (
	FrameHeartbeat     = "heartbeat"
	FrameLogin         = "login"
	FrameLogout        = "logout"
	FrameSetPresence   = "set_presence"
	FrameAddRequest    = "add_request"
	FrameAcceptRequest = "accept_request"
	FrameRejectRequest = "reject_request"
	FrameWatchPeer     = "watch_peer"
	FrameFetchOlder    = "fetch_older"
	FrameSendMessage   = "send_message"
	FrameSearch        = "search"
	FrameWatchPresence = "watch_presence"
	FrameUnwatchPres   = "unwatch_presence"
)

// 下行推送帧类型
const (
	PushFriends          = "friends"
	PushRequestsReceived = "requests_received"
	PushRequestsSent     = "requests_sent"
	PushSuggestions      = "suggestions"
	PushMessages         = "messages"
	PushMessageSent      = "message_sent"
	PushPresence         = "presence"
	PushProfile          = "profile"
	PushPrincipal        = "principal"
	PushError            = "error"
)

// AckType 上行帧对应的应答帧类型
func AckType(frameType string) string {
	return frameType + "_ack"
}

type LoginData struct {
	Token string `json:"token"`
}

type PresenceData struct {
	Online bool `json:"online"`
}

type PeerData struct {
	Peer string `json:"peer"`
}

type FetchOlderData struct {
	Peer   string `json:"peer"`
	Cursor int64  `json:"cursor"`
}

type SendMessageData struct {
	Peer string `json:"peer"`
	Text string `json:"text"`
}

type SearchData struct {
	Text string `json:"text"`
}

// OlderPage fetch_older 的应答，按 Seq 升序
type OlderPage struct {
	Peer     string          `json:"peer"`
	Messages []model.Message `json:"messages"`
}

// ResolveResult accept/reject 的应答
type ResolveResult struct {
	Peer     string `json:"peer"`
	Resolved bool   `json:"resolved"`
}
