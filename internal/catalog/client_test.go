package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(loginPath, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("email") != "user@example.com" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":true,"data":"tok-123"}`))
	})
	mux.HandleFunc(shopsPath, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sessionId") != "tok-123" {
			http.Error(w, "no session", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":true,"data":[
			{"id":1,"name":"Ursynów","city":{"id":10,"name":"Warszawa"}},
			{"id":2,"name":"Stare Miasto","city":{"id":20,"name":"Kraków"}}
		]}`))
	})
	mux.HandleFunc(productsPath, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("shopId") != "1" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"result":true,"data":[]}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":true,"data":[{"id":5,"name":"Tort Mascarpone Malinowy"}]}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(ClientOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	return srv, client
}

func TestLoginAndListShops(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	if _, err := client.ListShops(ctx, 10); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("pre-login request err = %v, want ErrUnavailable", err)
	}

	if err := client.Login(ctx, "user@example.com", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	shops, err := client.ListShops(ctx, 10)
	if err != nil {
		t.Fatalf("list shops: %v", err)
	}
	if len(shops) != 2 {
		t.Fatalf("shops = %d, want 2", len(shops))
	}
	if shops[0].Name != "Ursynów" || shops[0].City != "Warszawa" {
		t.Fatalf("shop[0] = %+v", shops[0])
	}
}

func TestListProducts(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()
	if err := client.Login(ctx, "user@example.com", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	products, err := client.ListProducts(ctx, 1)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(products) != 1 || products[0].Name != "Tort Mascarpone Malinowy" {
		t.Fatalf("products = %+v", products)
	}
}

func TestNonJSONResponseIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	err := client.Login(context.Background(), "user@example.com", "secret")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestErrorStatusIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	err := client.Login(context.Background(), "user@example.com", "secret")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
