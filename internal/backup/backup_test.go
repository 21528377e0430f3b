package backup

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/bpires/listd/internal/database"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	getErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3NotFound{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

type s3NotFound struct{}

func (e *s3NotFound) Error() string { return "NoSuchKey" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func configuredS3() S3Config {
	return S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret", Region: "auto"}
}

func TestManagerDisabledWithoutConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"empty", Config{}},
		{"no passphrase", Config{S3: configuredS3()}},
		{"no credentials", Config{S3: S3Config{Bucket: "test"}, Passphrase: "p"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager(tc.cfg, nil, testLogger())
			if m.Status().State != StateDisabled {
				t.Errorf("state = %q, want %q", m.Status().State, StateDisabled)
			}
			if _, err := m.RunNow(context.Background()); err == nil {
				t.Error("RunNow should fail when disabled")
			}
		})
	}
}

func TestManagerIdleWhenConfigured(t *testing.T) {
	m := NewManager(Config{S3: configuredS3(), Passphrase: "p"}, nil, testLogger())
	if m.Status().State != StateIdle {
		t.Errorf("state = %q, want %q", m.Status().State, StateIdle)
	}
}

func TestManagerStopSafety(t *testing.T) {
	m := NewManager(Config{S3: configuredS3(), Passphrase: "p", Interval: time.Hour}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()
	m.Stop()

	// Double stop should not panic
	m.Stop()
}

func TestManagerDisabledNoStart(t *testing.T) {
	m := NewManager(Config{}, nil, testLogger())

	m.Start(context.Background())
	m.Stop()
}

func TestBackupAndRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "lists.db")

	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(
		`INSERT INTO documents (path, value) VALUES (?, ?)`,
		"shopping_lists/l1", `{"name":"Groceries","ownerId":"u1","referenceCount":1}`,
	); err != nil {
		t.Fatalf("seed document: %v", err)
	}

	mock := newMockS3()
	m := NewManager(Config{
		S3:         configuredS3(),
		DBPath:     dbPath,
		Passphrase: "passphrase",
	}, db, testLogger())
	m.client = mock

	key, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run backup: %v", err)
	}
	if m.Status().State != StateIdle {
		t.Errorf("state after backup = %q, want %q", m.Status().State, StateIdle)
	}
	if m.Status().LastBackup == nil {
		t.Error("expected LastBackup to be set")
	}
	if _, ok := mock.objects[key]; !ok {
		t.Fatalf("object %q not uploaded", key)
	}

	restorePath := filepath.Join(dir, "restored.db")
	if err := m.Restore(context.Background(), key, restorePath); err != nil {
		t.Fatalf("restore: %v", err)
	}

	restored, err := database.Open(restorePath)
	if err != nil {
		t.Fatalf("open restored database: %v", err)
	}
	t.Cleanup(func() { restored.Close() })

	var value string
	err = restored.QueryRow(`SELECT value FROM documents WHERE path = ?`, "shopping_lists/l1").Scan(&value)
	if err != nil {
		t.Fatalf("read restored document: %v", err)
	}
	if value != `{"name":"Groceries","ownerId":"u1","referenceCount":1}` {
		t.Errorf("restored value = %s", value)
	}
}

func TestRunNowUploadFailure(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "lists.db")

	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock := newMockS3()
	mock.putErr = os.ErrPermission
	m := NewManager(Config{
		S3:         configuredS3(),
		DBPath:     dbPath,
		Passphrase: "passphrase",
	}, db, testLogger())
	m.client = mock

	if _, err := m.RunNow(context.Background()); err == nil {
		t.Fatal("expected upload error")
	}
	if m.Status().State != StateError {
		t.Errorf("state after failure = %q, want %q", m.Status().State, StateError)
	}
}
