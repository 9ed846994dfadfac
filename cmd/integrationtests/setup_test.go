package integrationtests

import (
	auction "auction-engine/internal/auctionService"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// discardPublisher drops notification intents. The integration tests
// exercise the HTTP surface; delivery has its own tests.
type discardPublisher struct{}

func (discardPublisher) Publish(intent model.NotificationIntent) {}

// testClock is a movable clock shared between a test and the service.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SetupTestRouter initializes the router with an in-memory store for integration testing.
func SetupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	store := repository.NewMemoryStore()
	service := auction.NewAuctionService(store, discardPublisher{})
	return server.SetupRouter(service)
}

// SetupTestRouterWithAuctions initializes the router and seeds the store with auctions.
func SetupTestRouterWithAuctions(clock *testClock, auctions ...model.Auction) *gin.Engine {
	gin.SetMode(gin.TestMode)
	store := repository.NewMemoryStore()

	for _, a := range auctions {
		if _, err := store.CreateAuction(context.Background(), a); err != nil {
			panic(err)
		}
	}

	opts := []auction.Option{}
	if clock != nil {
		opts = append(opts, auction.WithClock(clock.Now))
	}
	service := auction.NewAuctionService(store, discardPublisher{}, opts...)
	return server.SetupRouter(service)
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func ExecuteRequest(t *testing.T, router *gin.Engine, method, url string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case []byte:
		reqBody = v
	case nil:
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		if err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}

		if w.Code == 201 {
			resp = resp["data"].(map[string]any)
		}
	}

	return resp, w
}
