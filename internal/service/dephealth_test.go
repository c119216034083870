package service

import (
	"context"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// closedAddr возвращает адрес порта, на котором никто не слушает.
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ошибка выделения порта: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestNewDephealthService_Redis(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	addr := closedAddr(t)
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	// Используем изолированный Prometheus registry для тестов
	reg := prometheus.NewRegistry()

	ds, err := NewDephealthServiceWithRegisterer("docview-test-01", "docview", rdb, addr, 5*time.Second, logger, reg)
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}
	if ds == nil {
		t.Fatal("DephealthService nil")
	}
}

func TestDephealthService_UnhealthyRedis(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	addr := closedAddr(t)
	rdb := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: 200 * time.Millisecond})
	defer rdb.Close()

	ds, err := NewDephealthServiceWithRegisterer("docview-test-02", "docview", rdb, addr, time.Second, logger,
		prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ds.Start(ctx); err != nil {
		t.Fatalf("Ошибка запуска: %v", err)
	}
	defer ds.Stop()

	// Даём время на первую проверку (интервал 1s + запас)
	time.Sleep(3 * time.Second)

	for key, val := range ds.Health() {
		if strings.HasPrefix(key, "redis:") && val {
			t.Errorf("redis health = true для ключа %q, ожидалось false (порт закрыт)", key)
		}
	}
}

// TestDephealthService_HealthyRedis — интеграционный тест с настоящим Redis.
func TestDephealthService_HealthyRedis(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("TEST_INTEGRATION не задан, пропуск интеграционного теста")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Ошибка запуска контейнера Redis: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Ошибка получения адреса Redis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ds, err := NewDephealthServiceWithRegisterer("docview-test-03", "docview", rdb, addr, time.Second, logger,
		prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}
	if err := ds.Start(ctx); err != nil {
		t.Fatalf("Ошибка запуска: %v", err)
	}
	defer ds.Stop()

	time.Sleep(3 * time.Second)

	found := false
	for key, val := range ds.Health() {
		if strings.HasPrefix(key, "redis:") {
			found = true
			if !val {
				t.Errorf("redis health = false для ключа %q, ожидалось true", key)
			}
		}
	}
	if !found {
		t.Errorf("Нет записи для redis в Health(), keys=%v", healthKeys(ds.Health()))
	}
}

// healthKeys возвращает ключи карты health для вывода в сообщениях об ошибках.
func healthKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
