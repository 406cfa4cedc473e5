package handler

import (
	"SocialSync/apps/sync/internal/engine"
	"SocialSync/apps/sync/internal/feed"
	"SocialSync/apps/sync/internal/manager"
	"SocialSync/apps/sync/internal/memstore"
	"SocialSync/apps/sync/internal/presence"
	"SocialSync/apps/sync/internal/svc"
	"SocialSync/config"
	"SocialSync/consts"
	"SocialSync/model"
	"SocialSync/pkg/util"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameWait = 3 * time.Second

type wsHarness struct {
	server      *httptest.Server
	signer      *util.TokenSigner
	connManager *manager.ConnectionManager
}

func newWSHarness(t *testing.T) *wsHarness {
	t.Helper()
	initHandlerTestLogger()

	cfg := config.DefaultSyncConfig()
	cfg.ResyncInterval = 0

	f := feed.NewMemoryFeed()
	store := memstore.New(f)
	ch := presence.NewChannel(presence.NewMemoryStore(f), f, cfg.ResyncInterval)

	var seq atomic.Int64
	eng := engine.New(engine.Deps{
		Store:    store.Repositories(),
		Feed:     f,
		Presence: ch,
		Config:   cfg,
		NextSeq:  func() int64 { return seq.Add(1) },
	})

	for _, email := range []string{"alice@test.com", "bob@test.com"} {
		require.NoError(t, store.Repositories().Profiles.Create(context.Background(), &model.Profile{
			PrincipalId: "pid-" + email,
			Email:       email,
			DisplayName: strings.Split(email, "@")[0],
		}))
	}

	signer := util.NewTokenSigner("secret", "test", time.Hour)
	connManager := manager.NewConnectionManager()
	h := NewWSHandler(connManager, svc.NewSyncService(signer), eng, ch, nil)

	r := gin.New()
	r.GET("/ws", h.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		connManager.Shutdown()
		srv.Close()
	})
	return &wsHarness{server: srv, signer: signer, connManager: connManager}
}

func (h *wsHarness) wsURL(token, deviceID string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("device_id", deviceID)
	return "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws?" + q.Encode()
}

func (h *wsHarness) dial(t *testing.T, email, deviceID string) *wsClient {
	t.Helper()
	token, err := h.signer.Sign("pid-"+email, email, deviceID)
	require.NoError(t, err)
	conn, resp, err := websocket.DefaultDialer.Dial(h.wsURL(token, deviceID), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (c *wsClient) send(frameType, id string, data any) {
	c.t.Helper()
	payload, err := svc.MarshalEnvelope(frameType, id, data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, payload))
}

// waitFrame 读帧直到出现满足条件的一帧
func (c *wsClient) waitFrame(frameType string, ok func(svc.Envelope) bool) svc.Envelope {
	c.t.Helper()
	deadline := time.Now().Add(frameWait)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		_, raw, err := c.conn.ReadMessage()
		require.NoError(c.t, err, "waiting for %s", frameType)
		var env svc.Envelope
		require.NoError(c.t, json.Unmarshal(raw, &env))
		if env.Type == frameType && (ok == nil || ok(env)) {
			return env
		}
	}
}

func profilesContain(email string) func(svc.Envelope) bool {
	return func(env svc.Envelope) bool {
		var ps []model.Profile
		if err := json.Unmarshal(env.Data, &ps); err != nil {
			return false
		}
		for _, p := range ps {
			if p.Email == email {
				return true
			}
		}
		return false
	}
}

func TestWSHandler_HandshakeRejected(t *testing.T) {
	h := newWSHarness(t)

	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL("garbage", "dev-1"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(h.wsURL("", "dev-1"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// token 绑定的设备与握手参数不一致
	token, err := h.signer.Sign("pid-alice", "alice@test.com", "dev-1")
	require.NoError(t, err)
	_, resp, err = websocket.DefaultDialer.Dial(h.wsURL(token, "dev-2"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWSHandler_FramesAndErrors(t *testing.T) {
	h := newWSHarness(t)
	alice := h.dial(t, "alice@test.com", "dev-a")

	env := alice.waitFrame(svc.PushPrincipal, func(env svc.Envelope) bool {
		var st engine.PrincipalState
		return json.Unmarshal(env.Data, &st) == nil && st.Principal != nil
	})
	var st engine.PrincipalState
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, "alice@test.com", st.Principal.Email)
	assert.Equal(t, "dev-a", st.Principal.DeviceID)

	alice.waitFrame(svc.PushFriends, nil)

	alice.send(svc.FrameHeartbeat, "h1", nil)
	ack := alice.waitFrame(svc.AckType(svc.FrameHeartbeat), nil)
	assert.Equal(t, "h1", ack.ID)

	alice.send("bogus", "x1", nil)
	errFrame := alice.waitFrame(svc.PushError, nil)
	assert.Equal(t, "x1", errFrame.ID)
	var ed svc.ErrorData
	require.NoError(t, json.Unmarshal(errFrame.Data, &ed))
	assert.Equal(t, int32(consts.CodeUnsupportedFrame), ed.Code)

	require.NoError(t, alice.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	errFrame = alice.waitFrame(svc.PushError, nil)
	require.NoError(t, json.Unmarshal(errFrame.Data, &ed))
	assert.Equal(t, int32(consts.CodeBodyError), ed.Code)

	alice.send(svc.FrameAddRequest, "self", svc.PeerData{Peer: "alice@test.com"})
	errFrame = alice.waitFrame(svc.PushError, nil)
	assert.Equal(t, "self", errFrame.ID)
	require.NoError(t, json.Unmarshal(errFrame.Data, &ed))
	assert.Equal(t, int32(consts.CodeRequestSelf), ed.Code)

	alice.send(svc.FrameSendMessage, "m0", svc.SendMessageData{Peer: "bob@test.com", Text: "   "})
	errFrame = alice.waitFrame(svc.PushError, nil)
	require.NoError(t, json.Unmarshal(errFrame.Data, &ed))
	assert.Equal(t, int32(consts.CodeMessageEmpty), ed.Code)
}

func TestWSHandler_RequestAcceptAndMessage(t *testing.T) {
	h := newWSHarness(t)
	alice := h.dial(t, "alice@test.com", "dev-a")
	bob := h.dial(t, "bob@test.com", "dev-b")
	alice.waitFrame(svc.PushPrincipal, nil)
	bob.waitFrame(svc.PushPrincipal, nil)

	alice.send(svc.FrameAddRequest, "r1", svc.PeerData{Peer: "bob@test.com"})
	alice.waitFrame(svc.AckType(svc.FrameAddRequest), nil)
	alice.waitFrame(svc.PushRequestsSent, profilesContain("bob@test.com"))
	bob.waitFrame(svc.PushRequestsReceived, profilesContain("alice@test.com"))

	bob.send(svc.FrameAcceptRequest, "a1", svc.PeerData{Peer: "alice@test.com"})
	ack := bob.waitFrame(svc.AckType(svc.FrameAcceptRequest), nil)
	var rr svc.ResolveResult
	require.NoError(t, json.Unmarshal(ack.Data, &rr))
	assert.True(t, rr.Resolved)

	alice.waitFrame(svc.PushFriends, profilesContain("bob@test.com"))
	bob.waitFrame(svc.PushFriends, profilesContain("alice@test.com"))

	alice.send(svc.FrameWatchPeer, "w1", svc.PeerData{Peer: "bob@test.com"})
	alice.waitFrame(svc.AckType(svc.FrameWatchPeer), nil)

	alice.send(svc.FrameSendMessage, "m1", svc.SendMessageData{Peer: "bob@test.com", Text: "hi bob"})
	sent := alice.waitFrame(svc.AckType(svc.FrameSendMessage), nil)
	var msg model.Message
	require.NoError(t, json.Unmarshal(sent.Data, &msg))
	assert.Equal(t, "hi bob", msg.Text)

	alice.waitFrame(svc.PushMessages, func(env svc.Envelope) bool {
		var log engine.PeerLog
		if json.Unmarshal(env.Data, &log) != nil {
			return false
		}
		for _, m := range log.Messages {
			if m.Text == "hi bob" {
				return true
			}
		}
		return false
	})
}

func TestWSHandler_SameDeviceReplaced(t *testing.T) {
	h := newWSHarness(t)
	first := h.dial(t, "alice@test.com", "dev-a")
	first.waitFrame(svc.PushPrincipal, nil)

	second := h.dial(t, "alice@test.com", "dev-a")
	second.waitFrame(svc.PushPrincipal, nil)

	// 旧连接被服务端关闭
	require.NoError(t, first.conn.SetReadDeadline(time.Now().Add(frameWait)))
	for {
		if _, _, err := first.conn.ReadMessage(); err != nil {
			break
		}
	}

	require.Eventually(t, func() bool {
		return h.connManager.Count() == 1
	}, frameWait, 10*time.Millisecond)

	second.send(svc.FrameHeartbeat, "h2", nil)
	second.waitFrame(svc.AckType(svc.FrameHeartbeat), nil)
}

func TestWSHandler_LogoutAndLogin(t *testing.T) {
	h := newWSHarness(t)
	c := h.dial(t, "alice@test.com", "dev-a")
	c.waitFrame(svc.PushPrincipal, nil)

	c.send(svc.FrameLogout, "o1", nil)
	c.waitFrame(svc.AckType(svc.FrameLogout), nil)

	c.send(svc.FrameHeartbeat, "h1", nil)
	errFrame := c.waitFrame(svc.PushError, nil)
	var ed svc.ErrorData
	require.NoError(t, json.Unmarshal(errFrame.Data, &ed))
	assert.Equal(t, int32(consts.CodeNoPrincipal), ed.Code)

	token, err := h.signer.Sign("pid-bob@test.com", "bob@test.com", "dev-a")
	require.NoError(t, err)
	c.send(svc.FrameLogin, "l1", svc.LoginData{Token: token})
	ack := c.waitFrame(svc.AckType(svc.FrameLogin), nil)
	var st engine.PrincipalState
	require.NoError(t, json.Unmarshal(ack.Data, &st))
	require.NotNil(t, st.Principal)
	assert.Equal(t, "bob@test.com", st.Principal.Email)

	c.send(svc.FrameHeartbeat, "h2", nil)
	c.waitFrame(svc.AckType(svc.FrameHeartbeat), nil)
}
