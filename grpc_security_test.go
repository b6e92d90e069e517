package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	configpkg "capturerig/director/internal/config"
	"capturerig/director/internal/logging"
)

type stubServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *stubServerStream) Context() context.Context {
	return s.ctx
}

func generateSelfSignedCert(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "director-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certFile, keyFile
}

func TestSharedSecretInterceptorAcceptsValidSecret(t *testing.T) {
	interceptor := newSharedSecretStreamInterceptor("hunter2")
	md := metadata.New(map[string]string{sharedSecretMetadataKey: "hunter2"})
	stream := &stubServerStream{ctx: metadata.NewIncomingContext(context.Background(), md)}
	called := false
	handler := func(interface{}, grpc.ServerStream) error {
		called = true
		return nil
	}
	if err := interceptor(nil, stream, &grpc.StreamServerInfo{}, handler); err != nil {
		t.Fatalf("interceptor returned error: %v", err)
	}
	if !called {
		t.Fatal("expected handler to be invoked for valid secret")
	}
}

func TestSharedSecretInterceptorRejectsMissingSecret(t *testing.T) {
	interceptor := newSharedSecretStreamInterceptor("hunter2")
	stream := &stubServerStream{ctx: context.Background()}
	handler := func(interface{}, grpc.ServerStream) error { return nil }
	err := interceptor(nil, stream, &grpc.StreamServerInfo{}, handler)
	if err == nil {
		t.Fatal("expected error for missing secret")
	}
	st, _ := status.FromError(err)
	if st.Code() != codes.Unauthenticated {
		t.Fatalf("expected unauthenticated code, got %v", st.Code())
	}
}

func TestUnaryInterceptorAcceptsBearerToken(t *testing.T) {
	interceptor := newSharedSecretUnaryInterceptor("hunter2")
	md := metadata.New(map[string]string{"authorization": "Bearer hunter2"})
	ctx := metadata.NewIncomingContext(context.Background(), md)
	resp, err := interceptor(ctx, "req", &grpc.UnaryServerInfo{}, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Fatalf("expected handler response, got %v, %v", resp, err)
	}

	bad := metadata.NewIncomingContext(context.Background(), metadata.New(map[string]string{"authorization": "Bearer nope"}))
	if _, err := interceptor(bad, "req", &grpc.UnaryServerInfo{}, func(context.Context, interface{}) (interface{}, error) {
		t.Fatal("handler must not run for a wrong secret")
		return nil, nil
	}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestLoadMTLSCredentialsFailsWithBadPaths(t *testing.T) {
	if _, err := loadMTLSCredentials("missing-cert", "missing-key", "missing-ca"); err == nil {
		t.Fatal("expected error for missing files")
	}
}

func TestConfigureGRPCSecurityMTLS(t *testing.T) {
	certFile, keyFile := generateSelfSignedCert(t)

	cfg := configpkg.GRPCConfig{CertPath: certFile, KeyPath: keyFile, ClientCAPath: certFile}
	opts, err := configureGRPCSecurity(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("configureGRPCSecurity: %v", err)
	}
	if len(opts) != 1 {
		t.Fatalf("expected a single credentials option, got %d", len(opts))
	}
}

func TestConfigureGRPCSecuritySharedSecret(t *testing.T) {
	cfg := configpkg.GRPCConfig{SharedSecret: "hunter2"}
	opts, err := configureGRPCSecurity(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("configureGRPCSecurity: %v", err)
	}
	if len(opts) != 2 {
		t.Fatalf("expected unary and stream interceptors, got %d options", len(opts))
	}
}

func TestConfigureGRPCSecurityPlaintext(t *testing.T) {
	opts, err := configureGRPCSecurity(configpkg.GRPCConfig{Address: ":0"}, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("configureGRPCSecurity: %v", err)
	}
	if len(opts) != 0 {
		t.Fatalf("expected no options for plaintext, got %d", len(opts))
	}
}
