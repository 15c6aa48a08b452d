package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"govtender/internal/auth"
	"govtender/internal/controller"
	"govtender/internal/models"
	"govtender/internal/router"
	"govtender/internal/service"
	"govtender/internal/testutils"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testPassword = "secret123"

type testServer struct {
	*httptest.Server
	svc   *service.Service
	store *testutils.Store
}

func newTestServer(t *testing.T, cfg router.Config) *testServer {
	t.Helper()

	store := testutils.NewStore()
	storage := testutils.NewStorage()
	svc := service.NewService(store, auth.NewTokenService(testutils.TokenConfig()),
		service.WithLedger(testutils.NewLedger(), time.Second),
		service.WithImageStore(storage),
		service.WithDocumentStore(storage),
		service.WithNotifier(testutils.NewNotifier()),
		service.WithLogger(zerolog.Nop()),
	)
	cfg.Log = zerolog.Nop()
	c := controller.NewController(svc, testutils.TokenConfig())

	srv := httptest.NewTLSServer(router.NewRouter(c, cfg))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, svc: svc, store: store}
}

// client returns a client with its own cookie jar, one per user.
func (s *testServer) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	client := s.Client()
	return &http.Client{Transport: client.Transport, Jar: jar}
}

func do(t *testing.T, client *http.Client, method, url string, body any, expectedStatus int) []byte {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, expectedStatus, resp.StatusCode, "%s %s: %s", method, url, data)
	return data
}

func TestServiceEndpoints(t *testing.T) {
	srv := newTestServer(t, router.Config{Metrics: true})
	client := srv.client(t)

	require.Equal(t, "ok", string(do(t, client, http.MethodGet, srv.URL+"/api/ping", nil, http.StatusOK)))
	require.Contains(t, string(do(t, client, http.MethodGet, srv.URL+"/health", nil, http.StatusOK)), `"ok"`)
	do(t, client, http.MethodGet, srv.URL+"/metrics", nil, http.StatusOK)
	do(t, client, http.MethodGet, srv.URL+"/nowhere", nil, http.StatusNotFound)
	do(t, client, http.MethodGet, srv.URL+"/tenders", nil, http.StatusUnauthorized)
}

func TestTenderLifecycle(t *testing.T) {
	srv := newTestServer(t, router.Config{})
	ctx := context.Background()

	// citizen signs up with a profile image and logs in
	alice := srv.client(t)
	body, contentType := testutils.Multipart(map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"fullName": "Alice Doe",
		"password": testPassword,
	}, testutils.FilePart{Field: "dp", Name: "dp.png", Data: testutils.PNG()})
	resp, err := alice.Post(srv.URL+"/api/citizens/register", contentType, body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	do(t, alice, http.MethodPost, srv.URL+"/api/citizens/login",
		controller.CitizenLoginReq{Email: "alice@example.com", Password: testPassword}, http.StatusOK)

	// admin registers and waits for the owner
	admin := srv.client(t)
	data := do(t, admin, http.MethodPost, srv.URL+"/api/admins/register",
		controller.AccountReq{UserId: 1001, Password: testPassword}, http.StatusCreated)
	var pending controller.PendingAdminResponse
	require.NoError(t, json.Unmarshal(data, &pending))
	require.Equal(t, models.ApprovalPending, pending.Status)
	require.Empty(t, admin.Jar.Cookies(mustURL(t, srv.URL)))

	do(t, admin, http.MethodPost, srv.URL+"/api/admins/login",
		controller.AccountReq{UserId: 1001, Password: testPassword}, http.StatusUnauthorized)

	_, err = srv.svc.BootstrapOwner(ctx, 1, testPassword)
	require.NoError(t, err)
	owner := srv.client(t)
	do(t, owner, http.MethodPost, srv.URL+"/api/owners/login",
		controller.AccountReq{UserId: 1, Password: testPassword}, http.StatusOK)
	do(t, alice, http.MethodPost, srv.URL+"/api/owners/verify",
		controller.VerifyAdminReq{AdminId: pending.Admin.Id}, http.StatusForbidden)
	do(t, owner, http.MethodPost, srv.URL+"/api/owners/verify",
		controller.VerifyAdminReq{AdminId: pending.Admin.Id}, http.StatusOK)

	do(t, admin, http.MethodPost, srv.URL+"/api/admins/login",
		controller.AccountReq{UserId: 1001, Password: testPassword}, http.StatusOK)

	// tender, bid, award
	data = do(t, admin, http.MethodPost, srv.URL+"/tenders", controller.NewTenderReq{
		Title:       "Bridge inspection",
		Description: "Yearly inspection of the river bridge",
		Budget:      80000,
		Deadline:    time.Now().Add(7 * 24 * time.Hour).Format(time.RFC3339),
	}, http.StatusCreated)
	var tender models.Tender
	require.NoError(t, json.Unmarshal(data, &tender))

	do(t, alice, http.MethodPost, srv.URL+"/tenders", controller.NewTenderReq{
		Title: "x", Description: "x", Budget: 1, Deadline: "2099-01-01",
	}, http.StatusForbidden)

	data = do(t, alice, http.MethodPost, srv.URL+"/tenders/"+tender.Id+"/bids", controller.NewBidReq{
		Amount:           75000,
		Description:      "Certified inspection crew",
		ProposedTimeline: "2 weeks",
	}, http.StatusCreated)
	var bid models.Bid
	require.NoError(t, json.Unmarshal(data, &bid))

	data = do(t, admin, http.MethodGet, srv.URL+"/tenders/"+tender.Id+"/bids", nil, http.StatusOK)
	var bids []models.TenderBid
	require.NoError(t, json.Unmarshal(data, &bids))
	require.Len(t, bids, 1)
	require.Equal(t, "alice@example.com", bids[0].BidderEmail)

	do(t, admin, http.MethodPatch, srv.URL+"/bids/"+bid.Id+"/status",
		controller.StatusReq{Status: "ACCEPTED"}, http.StatusOK)

	data = do(t, alice, http.MethodGet, srv.URL+"/tenders/"+tender.Id, nil, http.StatusOK)
	var details models.TenderDetails
	require.NoError(t, json.Unmarshal(data, &details))
	require.Equal(t, models.TenderAwarded, details.Tender.Status)
	require.NotNil(t, details.Tender.SelectedBidId)
	require.Equal(t, bid.Id, *details.Tender.SelectedBidId)

	data = do(t, alice, http.MethodGet, srv.URL+"/users/me/bids", nil, http.StatusOK)
	var mine []models.CitizenBid
	require.NoError(t, json.Unmarshal(data, &mine))
	require.Len(t, mine, 1)
	require.Equal(t, models.BidAccepted, mine[0].Status)

	do(t, admin, http.MethodPost, srv.URL+"/tenders/"+tender.Id+"/complete", nil, http.StatusOK)

	// refresh rotates, logout ends the session
	do(t, alice, http.MethodPost, srv.URL+"/api/citizens/refresh-token", nil, http.StatusOK)
	do(t, alice, http.MethodPost, srv.URL+"/api/citizens/logout", nil, http.StatusOK)
	do(t, alice, http.MethodGet, srv.URL+"/tenders", nil, http.StatusUnauthorized)
}

func TestAuthRateLimit(t *testing.T) {
	limit, err := router.NewAuthRateLimiter("2-M", nil)
	require.NoError(t, err)
	srv := newTestServer(t, router.Config{AuthRateLimit: limit})
	client := srv.client(t)

	login := controller.CitizenLoginReq{Email: "nobody@example.com", Password: testPassword}
	do(t, client, http.MethodPost, srv.URL+"/api/citizens/login", login, http.StatusUnauthorized)
	do(t, client, http.MethodPost, srv.URL+"/api/citizens/login", login, http.StatusUnauthorized)
	do(t, client, http.MethodPost, srv.URL+"/api/citizens/login", login, http.StatusTooManyRequests)

	// only the auth routes are limited
	do(t, client, http.MethodGet, srv.URL+"/api/ping", nil, http.StatusOK)
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, router.Config{CORSOrigin: "https://portal.example.gov"})
	client := srv.client(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/tenders", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://portal.example.gov")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "https://portal.example.gov", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/api/ping", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSecureHeaders(t *testing.T) {
	srv := newTestServer(t, router.Config{Secure: router.NewSecure(router.SecureOptions(false))})
	client := srv.client(t)

	resp, err := client.Get(srv.URL + "/api/ping")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRateLimitIgnoresForwardedFor(t *testing.T) {
	limit, err := router.NewAuthRateLimiter("2-M", nil)
	require.NoError(t, err)
	srv := newTestServer(t, router.Config{AuthRateLimit: limit})
	client := srv.client(t)

	login := func(forwardedFor string) int {
		data, err := json.Marshal(controller.CitizenLoginReq{Email: "nobody@example.com", Password: testPassword})
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/citizens/login", bytes.NewReader(data))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwardedFor)
		req.Header.Set("X-Real-IP", forwardedFor)

		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	require.Equal(t, http.StatusUnauthorized, login("203.0.113.1"))
	require.Equal(t, http.StatusUnauthorized, login("203.0.113.2"))
	require.Equal(t, http.StatusTooManyRequests, login("203.0.113.3"))
}

func TestObjectsServeFilesOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc123"), []byte("stored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".upload-42"), []byte("partial"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	srv := newTestServer(t, router.Config{ObjectsDir: dir})
	client := srv.client(t)

	require.Equal(t, "stored", string(do(t, client, http.MethodGet, srv.URL+"/objects/abc123", nil, http.StatusOK)))
	listing := do(t, client, http.MethodGet, srv.URL+"/objects/", nil, http.StatusNotFound)
	require.NotContains(t, string(listing), "abc123")
	do(t, client, http.MethodGet, srv.URL+"/objects/.upload-42", nil, http.StatusNotFound)
	do(t, client, http.MethodGet, srv.URL+"/objects/nested/", nil, http.StatusNotFound)
}
