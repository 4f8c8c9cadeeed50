package main

import (
	"testing"

	"github.com/kingdavid28/chatstatus/internal/config"
)

func TestBuildStoreMemory(t *testing.T) {
	st, err := buildStore(config.StoreConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("build memory store: %v", err)
	}
	if st == nil {
		t.Fatalf("expected store")
	}
}

func TestBuildStoreUnknownBackend(t *testing.T) {
	if _, err := buildStore(config.StoreConfig{Backend: "etcd"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestServeCommandRegistered(t *testing.T) {
	root := rootCmd()
	cmd, _, err := root.Find([]string{"serve"})
	if err != nil {
		t.Fatalf("find serve: %v", err)
	}
	if cmd.Use != "serve" {
		t.Fatalf("resolved %q", cmd.Use)
	}
}
