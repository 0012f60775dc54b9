package store

import (
	"testing"
	"time"

	"github.com/ashureev/autopdf/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestAgentDocumentRoundTrip(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	agent := &domain.Agent{
		ID:          "agent-xyz",
		Name:        "Narrator",
		Description: "answers questions",
		Voice:       "s3://voice/manifest.json",
		CreatedAt:   created,
		UpdatedAt:   created,
	}

	got := toAgentDocument(agent).toDomain()
	if *got != *agent {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", got, agent)
	}
}

func TestAgentDocumentFallsBackToObjectID(t *testing.T) {
	oid := primitive.NewObjectID()
	doc := agentDocument{ID: oid, Name: "legacy"}

	if got := doc.toDomain().ID; got != oid.Hex() {
		t.Fatalf("expected ObjectID hex %s, got %s", oid.Hex(), got)
	}
}
