package endpoint_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ariebrainware/campus-gateway/audit"
	"github.com/ariebrainware/campus-gateway/authevents"
	"github.com/ariebrainware/campus-gateway/endpoint"
	"github.com/ariebrainware/campus-gateway/kvstore"
	"github.com/ariebrainware/campus-gateway/middleware"
	"github.com/ariebrainware/campus-gateway/model"
	"github.com/ariebrainware/campus-gateway/repository"
	"github.com/ariebrainware/campus-gateway/security"
	"github.com/ariebrainware/campus-gateway/util"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testSecret   = "endpoint-test-secret"
	testPassword = "correct-horse-battery"
)

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	api    *endpoint.API
}

// setupTestServer wires the handlers the way main does, on SQLite and the in-process store.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	util.SetJWTSecret(testSecret)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:endpoint_%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, model.AutoMigrate(db))

	store := kvstore.NewMemoryStore(time.Minute)
	users := repository.NewUserRepository(db)
	blocks := repository.NewBlockRepository(db)
	events := repository.NewEventRepository(db)
	alerts := repository.NewAlertRepository(db)

	lookup := func(ctx context.Context, email string) uint {
		return util.LookupUserIDByEmail(db.WithContext(ctx), email)
	}
	recorder := audit.NewRecorder(events, alerts, store, lookup, nil, audit.Config{})
	lockout := security.NewLockout(repository.NewProfileRepository(db), recorder, security.LockoutConfig{})
	bus := authevents.NewLocalBus()
	bus.Subscribe(lockout.HandleAuthEvent)
	bus.Subscribe(recorder.HandleAuthEvent)

	api := &endpoint.API{
		Reputation: security.NewReputation(store, blocks, security.ReputationConfig{CacheTTL: time.Minute, FailOpen: true}),
		Lockout:    lockout,
		Recorder:   recorder,
		Bus:        bus,
		Users:      users,
		Blocks:     blocks,
		Events:     events,
		Alerts:     alerts,
	}

	resolver, err := security.NewIdentityResolver(nil)
	require.NoError(t, err)
	r := gin.New()
	r.Use(middleware.IdentifyUser(resolver))
	api.RegisterRoutes(r)
	return &testServer{router: r, db: db, api: api}
}

// createUser inserts an account with testPassword under the named role.
func (s *testServer) createUser(t *testing.T, email, roleName string) *model.User {
	t.Helper()
	var role model.Role
	require.NoError(t, s.db.Where("name = ?", roleName).First(&role).Error)
	u := &model.User{Name: email, Email: email, Password: util.HashPassword(testPassword), RoleID: role.ID}
	require.NoError(t, s.api.Users.Create(context.Background(), u))
	return u
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	admin := s.createUser(t, "admin@campus.test", model.RoleAdmin)
	return bearerFor(t, admin.ID, model.RoleAdmin)
}

func bearerFor(t *testing.T, userID uint, role string) string {
	t.Helper()
	token, err := middleware.NewAccessToken(userID, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

type apiResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

type requestSpec struct {
	method string
	path   string
	body   interface{}
	auth   string
	ip     string
}

func (s *testServer) do(t *testing.T, in requestSpec) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var body bytes.Buffer
	if in.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(in.body))
	}
	req := httptest.NewRequest(in.method, in.path, &body)
	if in.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if in.auth != "" {
		req.Header.Set("Authorization", in.auth)
	}
	if in.ip != "" {
		req.RemoteAddr = in.ip + ":40000"
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func decodeData(t *testing.T, resp apiResponse, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, dst))
}

type listPage[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}
