package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundryonline/config"
	"laundryonline/internal/app"
	"laundryonline/internal/db"
	"laundryonline/internal/hub"
	"laundryonline/internal/model"
	"laundryonline/internal/notification"
)

const adminEmail = "warden@example.com"

type testServer struct {
	t   *testing.T
	app *app.App
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg := &config.Config{
		Server: config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 5},
		Database: config.DatabaseConfig{
			DSN:          fmt.Sprintf("sqlite:file:%s?mode=memory&cache=shared", name),
			MaxOpenConns: 1,
		},
		Auth:          config.AuthConfig{JWTSecret: "secret", AdminEmails: []string{adminEmail}},
		Sync:          config.SyncConfig{ReconnectMinMillis: 5, ReconnectMaxMillis: 50},
		Notifications: config.NotificationsConfig{Enabled: true},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	gormDB, err := db.Init(&cfg.Database)
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()

	a, err := app.Build(cfg, gormDB)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx)
	srv := httptest.NewServer(a.Handler)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		a.Store.Close()
		sqlDB.Close()
	})

	require.Eventually(t, func() bool { return !a.Sync.State().Loading }, 2*time.Second, 5*time.Millisecond)
	return &testServer{t: t, app: a, srv: srv}
}

func (s *testServer) do(method, path, token string, body any) (int, []byte) {
	s.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, r)
	require.NoError(s.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp.StatusCode, out
}

// signUp creates an account and returns its token and uid.
func (s *testServer) signUp(email string) (string, string) {
	s.t.Helper()
	code, body := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "hunter22", "displayName": "Resident",
	})
	require.Equal(s.t, http.StatusCreated, code, string(body))
	var sess struct {
		Token string `json:"token"`
		User  struct {
			UID string `json:"uid"`
		} `json:"user"`
	}
	require.NoError(s.t, json.Unmarshal(body, &sess))
	require.NotEmpty(s.t, sess.Token)
	return sess.Token, sess.User.UID
}

type listResponse struct {
	Machines []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Status      string `json:"status"`
		Bucket      string `json:"bucket"`
		Notified    bool   `json:"notified"`
		TimeDisplay string `json:"timeDisplay"`
	} `json:"machines"`
	Counts struct {
		Available int `json:"available"`
		InUse     int `json:"inUse"`
	} `json:"counts"`
	Loading bool `json:"loading"`
}

func (s *testServer) list(query string) listResponse {
	s.t.Helper()
	code, body := s.do(http.MethodGet, "/api/machines"+query, "", nil)
	require.Equal(s.t, http.StatusOK, code, string(body))
	var out listResponse
	require.NoError(s.t, json.Unmarshal(body, &out))
	return out
}

type notificationList struct {
	Notifications []notification.Notification `json:"notifications"`
	Unread        int                         `json:"unread"`
}

func (s *testServer) notifications(token string) notificationList {
	s.t.Helper()
	code, body := s.do(http.MethodGet, "/api/notifications", token, nil)
	require.Equal(s.t, http.StatusOK, code, string(body))
	var out notificationList
	require.NoError(s.t, json.Unmarshal(body, &out))
	return out
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)

	token, uid := s.signUp("resident@example.com")

	code, body := s.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	var me struct {
		User struct {
			UID         string `json:"uid"`
			Email       string `json:"email"`
			DisplayName string `json:"displayName"`
		} `json:"user"`
		IsAdmin bool `json:"isAdmin"`
	}
	require.NoError(t, json.Unmarshal(body, &me))
	assert.Equal(t, uid, me.User.UID)
	assert.Equal(t, "resident@example.com", me.User.Email)
	assert.False(t, me.IsAdmin)

	code, _ = s.do(http.MethodPatch, "/api/auth/me", token, map[string]string{"displayName": "Room 12"})
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "resident@example.com", "password": "hunter22"})
	assert.Equal(t, http.StatusConflict, code)

	code, body = s.do(http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "resident@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Contains(t, string(body), `"kind":"auth_failure"`)

	code, _ = s.do(http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "resident@example.com", "password": "hunter22"})
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodPost, "/api/auth/signout", token, nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = s.do(http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code, "a signed out token is rejected")
}

func TestAdminMachines(t *testing.T) {
	s := newTestServer(t)
	user, _ := s.signUp("resident@example.com")
	admin, _ := s.signUp(adminEmail)

	code, _ := s.do(http.MethodPost, "/api/admin/machines", "", map[string]any{"name": "Washer 1"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodPost, "/api/admin/machines", user, map[string]any{"name": "Washer 1"})
	assert.Equal(t, http.StatusForbidden, code)

	code, body := s.do(http.MethodPost, "/api/admin/machines", admin, map[string]any{"id": "w1", "name": "Washer 1", "location": "Basement"})
	require.Equal(t, http.StatusCreated, code, string(body))

	code, _ = s.do(http.MethodPost, "/api/admin/machines", admin, map[string]any{"name": "Washer 1"})
	assert.Equal(t, http.StatusConflict, code, "names are unique among active machines")

	code, _ = s.do(http.MethodPost, "/api/admin/machines", admin, map[string]any{"name": "Spinner", "type": "spinner"})
	assert.Equal(t, http.StatusBadRequest, code)

	require.Eventually(t, func() bool {
		l := s.list("?bucket=available")
		return len(l.Machines) == 1 && l.Machines[0].ID == "w1"
	}, 2*time.Second, 10*time.Millisecond)

	code, _ = s.do(http.MethodGet, "/api/machines?bucket=broken", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(http.MethodPatch, "/api/admin/machines/w1/status", admin, map[string]any{"status": "in_use", "estimatedDuration": 30})
	require.Equal(t, http.StatusOK, code, string(body))
	assert.Contains(t, string(body), `"status":"running"`)

	require.Eventually(t, func() bool {
		l := s.list("?bucket=in_use")
		return len(l.Machines) == 1 && l.Counts.Available == 0 && l.Counts.InUse == 1
	}, 2*time.Second, 10*time.Millisecond)

	code, body = s.do(http.MethodGet, "/api/machines/w1", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "min remaining")

	code, _ = s.do(http.MethodPatch, "/api/admin/machines/w1/status", admin, map[string]any{"status": "exploded"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPatch, "/api/admin/machines/w1/status", admin, map[string]any{"status": "available"})
	require.Equal(t, http.StatusOK, code)

	code, body = s.do(http.MethodGet, "/api/machines/w1/runs", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"w1"`, "ending a run archives it")

	code, _ = s.do(http.MethodGet, "/api/machines/w1/runs?limit=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodDelete, "/api/admin/machines/w1", admin, nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = s.do(http.MethodDelete, "/api/admin/machines/w1", admin, nil)
	assert.Equal(t, http.StatusNotFound, code)

	require.Eventually(t, func() bool {
		code, _ := s.do(http.MethodGet, "/api/machines/w1", "", nil)
		return code == http.StatusNotFound
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMachineSubscriptions(t *testing.T) {
	s := newTestServer(t)
	user, _ := s.signUp("resident@example.com")
	admin, _ := s.signUp(adminEmail)

	code, _ := s.do(http.MethodPut, "/api/machines/missing/subscription", user, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(http.MethodPost, "/api/admin/machines", admin, map[string]any{"id": "d1", "name": "Dryer 1", "type": "dryer"})
	require.Equal(t, http.StatusCreated, code)

	code, body := s.do(http.MethodPut, "/api/machines/d1/subscription", user, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"machineId":"d1","subscribed":true}`, string(body))

	code, body = s.do(http.MethodGet, "/api/subscriptions", user, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"subscribedMachines":["d1"]}`, string(body))

	code, body = s.do(http.MethodGet, "/api/subscriptions", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"subscribedMachines":[]}`, string(body))

	code, _ = s.do(http.MethodDelete, "/api/machines/d1/subscription", user, nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, body = s.do(http.MethodGet, "/api/machines/d1/subscription", user, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"machineId":"d1","subscribed":false}`, string(body))

	code, _ = s.do(http.MethodPut, "/api/push/subscription", user, map[string]string{"endpoint": "https://push.example.com/1"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPut, "/api/push/subscription", user, map[string]string{
		"endpoint": "https://push.example.com/1", "p256dh": "key", "auth": "secret",
	})
	assert.Equal(t, http.StatusCreated, code)
}

func TestCompletionNotifiesOnce(t *testing.T) {
	s := newTestServer(t)
	user, _ := s.signUp("resident@example.com")
	admin, _ := s.signUp(adminEmail)

	code, _ := s.do(http.MethodPost, "/api/admin/machines", admin, map[string]any{"id": "w2", "name": "Washer 2", "status": "running"})
	require.Equal(t, http.StatusCreated, code)

	code, _ = s.do(http.MethodPatch, "/api/admin/machines/w2/status", admin, map[string]any{"status": "complete"})
	require.Equal(t, http.StatusOK, code)

	require.Eventually(t, func() bool {
		return len(s.notifications(user).Notifications) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		l := s.list("")
		return len(l.Machines) == 1 && l.Machines[0].Notified
	}, 2*time.Second, 10*time.Millisecond)

	// Redeliver the current state; nothing new fires.
	snap, err := s.app.Store.Snapshot(context.Background())
	require.NoError(t, err)
	s.app.Sync.Apply(context.Background(), snap)
	s.app.Sync.Apply(context.Background(), snap)

	got := s.notifications(user)
	require.Len(t, got.Notifications, 1)
	n := got.Notifications[0]
	assert.Equal(t, "Washer 2 is done!", n.Title)
	assert.Equal(t, "Your laundry in Washer 2 has completed its cycle.", n.Message)
	assert.Equal(t, "w2", n.MachineID)
	assert.Equal(t, 1, got.Unread)

	code, _ = s.do(http.MethodPost, "/api/notifications/"+n.ID+"/read", user, nil)
	assert.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, 0, s.notifications(user).Unread)

	code, _ = s.do(http.MethodPost, "/api/notifications/nope/read", user, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPermissionsAndUnsupported(t *testing.T) {
	s := newTestServer(t)
	user, _ := s.signUp("resident@example.com")

	code, body := s.do(http.MethodGet, "/api/notifications/permission", user, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"notifications":"granted","messaging":"denied"}`, string(body))

	code, _ = s.do(http.MethodPut, "/api/notifications/permission", user, map[string]string{"notifications": "maybe"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(http.MethodPut, "/api/notifications/permission", user, map[string]string{"notifications": "denied"})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"notifications":"denied","messaging":"denied"}`, string(body))

	code, body = s.do(http.MethodGet, "/api/vapid_public_key", "", nil)
	assert.Equal(t, http.StatusNotImplemented, code)
	assert.Contains(t, string(body), `"kind":"unsupported_environment"`)

	code, _ = s.do(http.MethodGet, "/api/messaging/token", user, nil)
	assert.Equal(t, http.StatusNotImplemented, code)

	code, body = s.do(http.MethodGet, "/api/sync/state", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"loading":false`)
}

func TestWebSocket(t *testing.T) {
	s := newTestServer(t)
	user, _ := s.signUp("resident@example.com")
	wsURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=bogus", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+user, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() hub.Message {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg hub.Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	// replies may follow a list pushed by the store watcher
	reply := func() hub.Message {
		t.Helper()
		for {
			if msg := read(); msg.Type != hub.TypeMachines {
				return msg
			}
		}
	}

	assert.Equal(t, hub.TypeMachines, read().Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, hub.TypePong, reply().Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "state"}))
	assert.Equal(t, hub.TypeState, reply().Type)
}

func TestWebSocketSeesChangesRightAfterConnect(t *testing.T) {
	s := newTestServer(t)
	user, _ := s.signUp("resident@example.com")
	wsURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/ws?token=" + user

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The change lands before the client has read anything.
	require.NoError(t, s.app.Store.Set(context.Background(), model.Machine{
		ID: "w1", Name: "Washer 1", Type: model.TypeWasher, Status: "running",
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg struct {
			Type string            `json:"type"`
			Body []json.RawMessage `json:"body"`
		}
		require.NoError(t, conn.ReadJSON(&msg), "the new machine never reached the client")
		if msg.Type == hub.TypeMachines && len(msg.Body) == 1 {
			return
		}
	}
}
