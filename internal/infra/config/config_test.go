package config

import (
	"testing"
	"time"

	"github.com/gocql/gocql"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Env != "dev" {
		t.Fatalf("expected dev env default, got %q", cfg.Env)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected :8080 default, got %q", cfg.HTTPAddr)
	}
	if cfg.ChatStore != "memory" {
		t.Fatalf("expected memory store default, got %q", cfg.ChatStore)
	}
	if cfg.UnreadBadgeTTL != 30*time.Second {
		t.Fatalf("expected 30s badge TTL default, got %v", cfg.UnreadBadgeTTL)
	}
	if cfg.SessionTTL != 168*time.Hour {
		t.Fatalf("expected one week session TTL default, got %v", cfg.SessionTTL)
	}
	if cfg.MongoConnectTimeout != 10*time.Second {
		t.Fatalf("expected 10s mongo connect timeout default, got %v", cfg.MongoConnectTimeout)
	}
	if cfg.ScyllaConsistency != gocql.Quorum {
		t.Fatalf("expected quorum default, got %v", cfg.ScyllaConsistency)
	}
	if cfg.S3PublicEndpoint != cfg.S3Endpoint {
		t.Fatalf("expected public endpoint to fall back to endpoint, got %q", cfg.S3PublicEndpoint)
	}
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	t.Setenv("CHAT_STORE", "postgres")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported CHAT_STORE")
	}
}

func TestLoadRequiresMongoURI(t *testing.T) {
	t.Setenv("CHAT_STORE", "mongo")
	t.Setenv("MONGO_URI", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when CHAT_STORE=mongo without MONGO_URI")
	}
}

func TestLoadParsesLists(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-a:9092, broker-b:9092 ,")
	t.Setenv("SCYLLA_HOSTS", "node1 , node2")
	t.Setenv("SCYLLA_CONSISTENCY", "one")
	t.Setenv("UNREAD_BADGE_TTL", "2m")
	t.Setenv("MONGO_CONNECT_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "broker-b:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if len(cfg.ScyllaHosts) != 2 || cfg.ScyllaHosts[0] != "node1" {
		t.Fatalf("unexpected scylla hosts %v", cfg.ScyllaHosts)
	}
	if cfg.ScyllaConsistency != gocql.One {
		t.Fatalf("unexpected consistency %v", cfg.ScyllaConsistency)
	}
	if cfg.UnreadBadgeTTL != 2*time.Minute {
		t.Fatalf("unexpected badge TTL %v", cfg.UnreadBadgeTTL)
	}
	if cfg.MongoConnectTimeout != 3*time.Second {
		t.Fatalf("unexpected mongo connect timeout %v", cfg.MongoConnectTimeout)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("SESSION_TTL", "forever")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid SESSION_TTL")
	}
}
