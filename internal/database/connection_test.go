package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
)

func TestDefaultConnectionConfig(t *testing.T) {
	config := DefaultConnectionConfig()

	if config.Host != "localhost" {
		t.Errorf("Expected host 'localhost', got '%s'", config.Host)
	}

	if config.Port != 5432 {
		t.Errorf("Expected port 5432, got %d", config.Port)
	}

	if config.Database != "httping" {
		t.Errorf("Expected database 'httping', got '%s'", config.Database)
	}

	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime 1h, got %v", config.ConnMaxLifetime)
	}
}

func TestConnectionConfigDSN(t *testing.T) {
	config := DefaultConnectionConfig()
	want := "host=localhost port=5432 user=httping password=httping dbname=httping sslmode=disable"
	if got := config.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}

	config.URL = "postgres://u:p@db:5432/httping?sslmode=require"
	if got := config.DSN(); got != config.URL {
		t.Errorf("DSN() = %q, want URL to take precedence", got)
	}
}

func TestConnectionConfigValidation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	config := &ConnectionConfig{
		Host:            "nonexistent-host",
		Port:            9999,
		User:            "invalid",
		Password:        "invalid",
		Database:        "invalid",
		SSLMode:         "disable",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Second * 30,
	}

	conn, err := NewConnection(config)
	if err == nil {
		conn.Close()
		t.Error("Expected connection to fail with invalid config, but it succeeded")
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"non-connection error", context.DeadlineExceeded, false},
		{"connection failure", &pq.Error{Code: "08006"}, true},
		{"wrapped connection failure", fmt.Errorf("insert: %w", &pq.Error{Code: "08001"}), true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsConnectionError(tt.err)
			if result != tt.expected {
				t.Errorf("IsConnectionError(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"non-retryable error", context.Canceled, false},
		{"deadlock", &pq.Error{Code: "40P01"}, true},
		{"too many connections", fmt.Errorf("query: %w", &pq.Error{Code: "53300"}), true},
		{"syntax error", &pq.Error{Code: "42601"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRetryableError(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryableError(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(&pq.Error{Code: "23505"}) {
		t.Error("expected 23505 to be a unique violation")
	}
	if IsUniqueViolation(context.Canceled) {
		t.Error("context.Canceled is not a unique violation")
	}
}
