package signal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"huddle/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestCoordinatesFromWire(t *testing.T) {
	tests := []struct {
		name    string
		payload *CoordinatesPayload
		wantErr bool
	}{
		{"missing payload", nil, true},
		{"missing latitude", &CoordinatesPayload{Longitude: floatPtr(10)}, true},
		{"missing longitude", &CoordinatesPayload{Latitude: floatPtr(10)}, true},
		{"zero is valid", &CoordinatesPayload{Latitude: floatPtr(0), Longitude: floatPtr(0)}, false},
		{"regular position", &CoordinatesPayload{Latitude: floatPtr(37.7749), Longitude: floatPtr(-122.4194)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coords, err := coordinatesFromWire(tt.payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidLocation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, *tt.payload.Latitude, coords.Latitude)
			assert.Equal(t, *tt.payload.Longitude, coords.Longitude)
		})
	}
}

func TestCoordinatesFromWireKeepsOptionalHints(t *testing.T) {
	payload := &CoordinatesPayload{
		Latitude:  floatPtr(1),
		Longitude: floatPtr(2),
		Accuracy:  floatPtr(5),
		Speed:     floatPtr(1.4),
	}

	coords, err := coordinatesFromWire(payload)
	require.NoError(t, err)
	require.NotNil(t, coords.Accuracy)
	assert.Equal(t, 5.0, *coords.Accuracy)
	require.NotNil(t, coords.Speed)
	assert.Equal(t, 1.4, *coords.Speed)
	assert.Nil(t, coords.Altitude)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestParseHandshakeToken(t *testing.T) {
	secret := "test-secret"

	userID, err := parseHandshakeToken(signToken(t, secret, jwt.MapClaims{"user_id": "alice"}), secret)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("alice"), userID)
}

func TestParseHandshakeToken_Rejections(t *testing.T) {
	secret := "test-secret"

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signToken(t, "other-secret", jwt.MapClaims{"user_id": "alice"})},
		{"missing user_id", signToken(t, secret, jwt.MapClaims{"sub": "alice"})},
		{"expired", signToken(t, secret, jwt.MapClaims{
			"user_id": "alice",
			"exp":     time.Now().Add(-time.Hour).Unix(),
		})},
		{"garbage", "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseHandshakeToken(tt.token, secret)
			assert.Error(t, err)
		})
	}
}

func TestOriginChecker(t *testing.T) {
	withOrigin := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	wildcard := originChecker([]string{"*"})
	assert.True(t, wildcard(withOrigin("https://evil.example")))

	restricted := originChecker([]string{"https://app.example.com"})
	assert.True(t, restricted(withOrigin("https://app.example.com")))
	assert.False(t, restricted(withOrigin("https://evil.example")))
	assert.True(t, restricted(withOrigin("")))
}

func TestReadPumpStopsWhenLoopIsGone(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for i := 0; i < 32; i++ {
			if err := c.WriteJSON(Message{Type: EventAuthenticate}); err != nil {
				return
			}
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	s := &Server{opts: Options{PongTimeout: 5 * time.Second}}

	messages := make(chan Message, 1)
	errs := make(chan error, 1)
	done := make(chan struct{})

	finished := make(chan struct{})
	go func() {
		s.readPump(client, messages, errs, done)
		close(finished)
	}()

	// With nobody draining messages the pump parks on the channel send as
	// soon as the one-slot buffer fills.
	require.Eventually(t, func() bool { return len(messages) == 1 }, 2*time.Second, 5*time.Millisecond)

	close(done)

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("read pump kept running after its consumer stopped")
	}
}
