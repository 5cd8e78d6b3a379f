package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type smoke struct {
	base   string
	client *http.Client
	token  string
}

func main() {
	base := strings.TrimRight(envOr("BOOKCAT_SMOKE_URL", "http://localhost:8080"), "/")
	grpcAddr := envOr("BOOKCAT_SMOKE_GRPC_ADDR", "localhost:9090")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := checkGRPCHealth(ctx, grpcAddr); err != nil {
		log.Fatalf("grpc health at %s: %v", grpcAddr, err)
	}

	s := &smoke{base: base, client: &http.Client{Timeout: 10 * time.Second}}
	suffix := uuid.NewString()[:8]
	email := "smoke-" + suffix + "@example.com"
	password := "smoke-" + uuid.NewString()

	if err := s.signup(ctx, "smoke-"+suffix, email, password); err != nil {
		log.Fatalf("signup: %v", err)
	}
	if err := s.login(ctx, email, password); err != nil {
		log.Fatalf("login: %v", err)
	}
	id, err := s.createBook(ctx, "Smoke "+suffix)
	if err != nil {
		log.Fatalf("create book: %v", err)
	}
	if err := s.expect(ctx, http.MethodGet, fmt.Sprintf("/api/v1/book/%d/", id), http.StatusOK); err != nil {
		log.Fatalf("get book: %v", err)
	}
	if err := s.expect(ctx, http.MethodGet, "/api/v1/book/export/?format=json&title="+url.QueryEscape(suffix), http.StatusOK); err != nil {
		log.Fatalf("export: %v", err)
	}
	if err := s.expect(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/book/%d/", id), http.StatusNoContent); err != nil {
		log.Fatalf("delete book: %v", err)
	}

	fmt.Printf("bookcat smoke test passed: author=%s book=%d\n", email, id)
}

func checkGRPCHealth(ctx context.Context, addr string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("status %s", resp.GetStatus())
	}
	return nil
}

func (s *smoke) signup(ctx context.Context, name, email, password string) error {
	body, _ := json.Marshal(map[string]string{"name": name, "email": email, "password_hash": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/api/v1/jwt/auth/signup/", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = s.send(req, http.StatusCreated)
	return err
}

func (s *smoke) login(ctx context.Context, email, password string) error {
	form := url.Values{"username": {email}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/api/v1/jwt/auth/login/", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	data, err := s.send(req, http.StatusOK)
	if err != nil {
		return err
	}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(data, &tok); err != nil {
		return err
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("empty access token")
	}
	s.token = tok.AccessToken
	return nil
}

func (s *smoke) createBook(ctx context.Context, title string) (int64, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", title)
	_ = mw.WriteField("published_year", "2001")
	_ = mw.WriteField("genre", "Other")
	part, err := mw.CreateFormFile("file", "smoke.txt")
	if err != nil {
		return 0, err
	}
	_, _ = part.Write([]byte("smoke test file"))
	if err := mw.Close(); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/api/v1/book/", &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	data, err := s.send(req, http.StatusCreated)
	if err != nil {
		return 0, err
	}
	var book struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(data, &book); err != nil {
		return 0, err
	}
	return book.ID, nil
}

func (s *smoke) expect(ctx context.Context, method, path string, want int) error {
	req, err := http.NewRequestWithContext(ctx, method, s.base+path, nil)
	if err != nil {
		return err
	}
	_, err = s.send(req, want)
	return err
}

func (s *smoke) send(req *http.Request, want int) ([]byte, error) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != want {
		return nil, fmt.Errorf("%s %s: status %d, want %d: %s", req.Method, req.URL.Path, resp.StatusCode, want, bytes.TrimSpace(data))
	}
	return data, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
