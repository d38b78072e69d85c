package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCoinGeckoFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != coinGeckoPricePath {
			t.Fatalf("路径不正确: %s", r.URL.Path)
		}
		if r.URL.Query().Get("ids") != "bitcoin" || r.URL.Query().Get("vs_currencies") != "usd" {
			t.Fatalf("查询参数不正确: %s", r.URL.RawQuery)
		}
		if r.Header.Get("User-Agent") != "test" {
			t.Fatalf("User-Agent 不正确: %s", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":64012.37}}`))
	}))
	defer srv.Close()

	p := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, Timeout: time.Second, UserAgent: "test"}, noopLogger())
	q, err := p.FetchPrice(context.Background())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if !q.Price.Equal(decimal.RequireFromString("64012.37")) {
		t.Fatalf("期望价格 64012.37, 实际 %s", q.Price)
	}
	if q.Source != "coingecko" {
		t.Fatalf("source 不正确: %s", q.Source)
	}
}

func TestCoinGeckoFetchMissingCoin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := p.FetchPrice(context.Background()); err == nil {
		t.Fatal("缺少价格字段时应返回错误")
	}
}

func TestCoinGeckoFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"status":{"error_code":429,"error_message":"rate limited"}}`))
	}))
	defer srv.Close()

	p := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := p.FetchPrice(context.Background())
	if err == nil {
		t.Fatal("HTTP 429 应返回错误")
	}
	if want := "coingecko api error (429): rate limited"; err.Error() != want {
		t.Fatalf("错误信息不正确: %q", err.Error())
	}
}

func TestBinanceFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != binanceTickerPath || r.URL.Query().Get("symbol") != "BTCUSDT" {
			t.Fatalf("请求不正确: %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"64001.99000000"}`))
	}))
	defer srv.Close()

	p := NewBinance(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	q, err := p.FetchPrice(context.Background())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if !q.Price.Equal(decimal.RequireFromString("64001.99")) || q.Source != "binance" {
		t.Fatalf("quote 不正确: %+v", q)
	}
}

func TestBinanceFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	p := NewBinance(BinanceOptions{BaseURL: srv.URL, Symbol: "NOPE", Timeout: time.Second}, noopLogger())
	if _, err := p.FetchPrice(context.Background()); err == nil {
		t.Fatal("HTTP 400 应返回错误")
	}
}

func TestBinanceFetchGarbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	p := NewBinance(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := p.FetchPrice(context.Background()); err == nil {
		t.Fatal("非 JSON 响应应返回错误")
	}
}

func TestChainlinkMissingConfig(t *testing.T) {
	p := NewChainlink(ChainlinkOptions{}, noopLogger())
	if _, err := p.FetchPrice(context.Background()); err == nil {
		t.Fatal("未配置 RPC 时应报错")
	}

	p = NewChainlink(ChainlinkOptions{RPCURL: "http://localhost", FeedAddress: "not-an-address"}, noopLogger())
	if _, err := p.FetchPrice(context.Background()); err == nil {
		t.Fatal("合约地址无效时应报错")
	}
}
