package hyperliquid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Throwaway key, never funded.
const testSecret = "289c2857d4598e37fb9647507e47a309d6133539bf21a8b9cb6df88fd5232032"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientOptions{
		BaseURL:        server.URL,
		AccountAddress: "0x0000000000000000000000000000000000000001",
		APISecret:      testSecret,
	})
	if err != nil {
		t.Fatalf("client setup failed: %v", err)
	}
	return client
}

func infoHandler(t *testing.T, responses map[string]string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Type string `json:"type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		body, ok := responses[req.Type]
		if !ok {
			t.Errorf("unexpected info type %q", req.Type)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(body)); err != nil {
			t.Error(err)
		}
	}
}

func TestGetMarketSnapshotParsesCandles(t *testing.T) {
	client := newTestClient(t, infoHandler(t, map[string]string{
		"candleSnapshot": `[
			{"t":1700000000000,"o":"100","h":"101.5","l":"99","c":"100.5","v":"42"},
			{"t":1700000060000,"o":"100.5","h":"102","l":"100","c":"101","v":"17"}
		]`,
	}))

	snapshot, err := client.GetMarketSnapshot(context.Background(), "BTC", "1m", 2)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if len(snapshot.Candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(snapshot.Candles))
	}
	last := snapshot.Candles[1]
	if last.High != 102 || last.Low != 100 || last.Close != 101 || last.Volume != 17 {
		t.Errorf("candle fields lost in parsing: %+v", last)
	}
}

func TestGetMarketSnapshotRejectsMalformedCandle(t *testing.T) {
	// A bad close must surface as an error, never as a zero price feeding
	// the indicators.
	client := newTestClient(t, infoHandler(t, map[string]string{
		"candleSnapshot": `[{"t":1700000000000,"o":"100","h":"101","l":"99","c":"bogus","v":"5"}]`,
	}))

	_, err := client.GetMarketSnapshot(context.Background(), "BTC", "1m", 1)
	if err == nil {
		t.Fatal("expected an error for a malformed close price")
	}
	if !strings.Contains(err.Error(), "bogus") {
		t.Errorf("error should name the bad value, got %v", err)
	}
}

func TestGetOpenPositionsRejectsMalformedEntry(t *testing.T) {
	client := newTestClient(t, infoHandler(t, map[string]string{
		"clearinghouseState": `{
			"marginSummary": {"accountValue": "1000"},
			"assetPositions": [
				{"position": {"coin": "ETH", "szi": "-2.5", "entryPx": "not-a-number", "unrealizedPnl": "0", "leverage": {"type": "cross", "value": 5}}}
			]
		}`,
	}))

	if _, err := client.GetOpenPositions(context.Background()); err == nil {
		t.Fatal("expected an error for a malformed entry price")
	}
}

func TestGetOrderbookRejectsMalformedLevel(t *testing.T) {
	client := newTestClient(t, infoHandler(t, map[string]string{
		"l2Book": `{"coin":"BTC","levels":[[{"px":"99.9","sz":"oops","n":1}],[{"px":"100.1","sz":"2","n":1}]]}`,
	}))

	if _, err := client.GetOrderbook(context.Background(), "BTC"); err == nil {
		t.Fatal("expected an error for a malformed book size")
	}
}
