package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/hwlegacy/portalauth"
)

// syncBuffer guards writes from the coordinator goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func resetFlags(dir string) {
	outputFormat = "table"
	stateDir = dir
	redisAddr = ""
	redisPrefix = "portalctl:"
	rolesDriver = "sqlite3"
	rolesDSN = ""
	envPrefix = "PORTALCTL_TEST"
	auditLog = false
	maxAttempts = 5
	passwordFlag = ""
}

// run executes portalctl with a fresh flag state against dir.
// Cannot run in parallel: rootCmd is shared.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	resetFlags(dir)
	out := &syncBuffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func register(t *testing.T, dir, email string) string {
	t.Helper()
	out, err := run(t, dir, "register", email, "--password", "correct-horse-battery", "-o", "json")
	if err != nil {
		t.Fatalf("register: %v\n%s", err, out)
	}
	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(out), &user); err != nil || user.ID == "" {
		t.Fatalf("decode register output %q: %v", out, err)
	}
	return user.ID
}

func TestLoginStatusLogoutLifecycle(t *testing.T) {
	dir := t.TempDir()
	id := register(t, dir, "alice@example.com")

	out, err := run(t, dir, "login", "alice@example.com", "--password", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v\n%s", err, out)
	}
	if strings.Count(out, "redirect: /dashboard") != 1 {
		t.Fatalf("expected one investor redirect, got:\n%s", out)
	}
	if !strings.Contains(out, "Role:    investor") {
		t.Fatalf("expected investor role, got:\n%s", out)
	}

	// The session survives the process through the state directory.
	out, err = run(t, dir, "status", "-o", "json")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	var view StateView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode status %q: %v", out, err)
	}
	if view.Phase != "authenticated" || view.UserID != id || view.IsAdmin {
		t.Fatalf("unexpected status %+v", view)
	}

	if out, err := run(t, dir, "logout"); err != nil || !strings.Contains(out, "signed out") {
		t.Fatalf("logout: %v\n%s", err, out)
	}
	out, err = run(t, dir, "status")
	if err != nil {
		t.Fatalf("status after logout: %v", err)
	}
	if !strings.Contains(out, "Phase:   anonymous") {
		t.Fatalf("expected anonymous after logout, got:\n%s", out)
	}
}

func TestAdminGrantRedirectsToAdminArea(t *testing.T) {
	dir := t.TempDir()
	id := register(t, dir, "root@example.com")

	if out, err := run(t, dir, "admin", "grant", id); err != nil {
		t.Fatalf("grant: %v\n%s", err, out)
	}
	out, err := run(t, dir, "admin", "check", id)
	if err != nil || !strings.Contains(out, "admin=true") {
		t.Fatalf("check: %v\n%s", err, out)
	}

	out, err = run(t, dir, "login", "root@example.com", "--password", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v\n%s", err, out)
	}
	if !strings.Contains(out, "redirect: /admin") || strings.Contains(out, "redirect: /dashboard") {
		t.Fatalf("expected only the admin redirect, got:\n%s", out)
	}

	if _, err := run(t, dir, "admin", "revoke", id); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	out, err = run(t, dir, "status")
	if err != nil || !strings.Contains(out, "Role:    investor") {
		t.Fatalf("expected investor after revoke: %v\n%s", err, out)
	}
}

func TestLoginFailureShowsInlineMessage(t *testing.T) {
	dir := t.TempDir()
	register(t, dir, "bob@example.com")

	_, err := run(t, dir, "login", "bob@example.com", "--password", "wrong-password")
	if err == nil {
		t.Fatal("expected login failure")
	}
	if err.Error() != "Invalid email or password" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	_, err = run(t, dir, "register", "bob@example.com", "--password", "another-password")
	if err == nil || err.Error() != "An account with this email already exists" {
		t.Fatalf("unexpected register error %v", err)
	}
}

func TestPasswordFromStdin(t *testing.T) {
	passwordFlag = ""
	got, err := readPassword(strings.NewReader("s3cret-value\r\nignored\n"))
	if err != nil || got != "s3cret-value" {
		t.Fatalf("got %q, %v", got, err)
	}
	got, err = readPassword(strings.NewReader("no-newline"))
	if err != nil || got != "no-newline" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestEmbeddedRedisBackend(t *testing.T) {
	dir := t.TempDir()
	resetFlags(dir)
	redisAddr = "embedded"
	rt, err := openRuntime(t.Context(), &syncBuffer{}, "/")
	if err != nil {
		t.Fatalf("openRuntime: %v", err)
	}
	defer rt.close()
	if err := rt.engine.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if st := rt.engine.Store().State(); st.Phase() != portalauth.PhaseAnonymous {
		t.Fatalf("expected anonymous, got %s", st.Phase())
	}
}

func TestPortalRouterGuardsAreas(t *testing.T) {
	dir := t.TempDir()
	id := register(t, dir, "carol@example.com")
	if _, err := run(t, dir, "admin", "grant", id); err != nil {
		t.Fatalf("grant: %v", err)
	}

	resetFlags(dir)
	rt, err := openRuntime(t.Context(), &syncBuffer{}, "/")
	if err != nil {
		t.Fatalf("openRuntime: %v", err)
	}
	defer rt.close()
	if err := rt.engine.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	srv := httptest.NewServer(newPortalRouter(rt.engine, rt.nav))
	defer srv.Close()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	resp, err := client.Get(srv.URL + "/dashboard")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || !strings.HasPrefix(resp.Header.Get("Location"), "/login") {
		t.Fatalf("anonymous dashboard: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, err = client.PostForm(srv.URL+"/login", url.Values{"email": {"carol@example.com"}, "password": {"nope-nope-nope"}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad credentials: %d", resp.StatusCode)
	}

	resp, err = client.PostForm(srv.URL+"/login", url.Values{"email": {"carol@example.com"}, "password": {"correct-horse-battery"}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/admin" {
		t.Fatalf("login: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, err = client.Get(srv.URL + "/admin")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin area: %d", resp.StatusCode)
	}

	resp, err = client.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	resp.Body.Close()
	if !strings.Contains(body.String(), "portalauth_sign_in_success_total 1") {
		t.Fatalf("metrics missing sign-in counter:\n%s", body.String())
	}
}

func TestLoginHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{portalauth.ErrInvalidCredentials, http.StatusUnauthorized},
		{portalauth.ErrEmailNotConfirmed, http.StatusUnauthorized},
		{portalauth.ErrInvalidInput, http.StatusUnauthorized},
		{fmt.Errorf("%w: %w", portalauth.ErrRateLimited, portalauth.ErrInvalidCredentials), http.StatusTooManyRequests},
		{portalauth.ErrRateLimited, http.StatusTooManyRequests},
		{portalauth.ErrProviderUnavailable, http.StatusServiceUnavailable},
		{portalauth.ErrInitializeFailed, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		if got := loginStatus(tc.err); got != tc.want {
			t.Fatalf("loginStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestPortalRouterThrottlesLogin(t *testing.T) {
	dir := t.TempDir()
	register(t, dir, "dave@example.com")

	resetFlags(dir)
	maxAttempts = 2
	rt, err := openRuntime(t.Context(), &syncBuffer{}, "/")
	if err != nil {
		t.Fatalf("openRuntime: %v", err)
	}
	defer rt.close()
	if err := rt.engine.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	srv := httptest.NewServer(newPortalRouter(rt.engine, rt.nav))
	defer srv.Close()

	want := []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusTooManyRequests}
	for i, code := range want {
		resp, err := http.PostForm(srv.URL+"/login", url.Values{"email": {"dave@example.com"}, "password": {"wrong-password-here"}})
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != code {
			t.Fatalf("attempt %d: status %d, want %d", i+1, resp.StatusCode, code)
		}
	}
}
