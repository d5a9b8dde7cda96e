package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"assetpool/crypto"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestTokenCommandSignsScopes(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	subject := key.PubKey().Address().String()
	t.Setenv("POOLD_HMAC_SECRET", "cli-secret")

	out, err := runCLI(t, "token", "--subject", subject, "--scope", "pool:trade,loans:write")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	parsed, err := jwt.Parse(strings.TrimSpace(out), func(*jwt.Token) (interface{}, error) {
		return []byte("cli-secret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer("poold"))
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"] != subject {
		t.Fatalf("unexpected subject %v", claims["sub"])
	}
	if claims["scope"] != "pool:trade loans:write" {
		t.Fatalf("unexpected scope %v", claims["scope"])
	}
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	t.Setenv("POOLD_HMAC_SECRET", "")
	if _, err := runCLI(t, "token", "--subject", key.PubKey().Address().String()); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
}

func TestKeygenWritesLoadableKeystore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operator.keystore")
	t.Setenv("POOLCTL_KEYSTORE_PASS", "hunter2")

	out, err := runCLI(t, "keygen", "--out", path)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	key, err := crypto.LoadFromKeystore(path, "hunter2")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if got := key.PubKey().Address().String(); got != strings.TrimSpace(out) {
		t.Fatalf("printed %q, keystore holds %q", strings.TrimSpace(out), got)
	}
	if _, err := runCLI(t, "keygen", "--out", path); err == nil {
		t.Fatalf("expected existing keystore to be kept without --force")
	}
}

func TestQuoteCommandQueriesServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/pool/quote" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("amount") != "100" || q.Get("direction") != "b_to_a" || q.Get("max_slippage_bps") != "1000" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"amount_out":"90","expected_out":"100"}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, "--endpoint", srv.URL, "quote", "100", "--direction", "b_to_a", "--max-slippage-bps", "1000")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !strings.Contains(out, `"amount_out": "90"`) {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"pool: price stale","code":"stale_price"}`))
	}))
	defer srv.Close()

	_, err := runCLI(t, "--endpoint", srv.URL, "pool")
	if err == nil || !strings.Contains(err.Error(), "price stale") {
		t.Fatalf("expected api error, got %v", err)
	}
}
